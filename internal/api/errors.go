package api

import (
	"context"
	"errors"

	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/verify"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return grpcstatus.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn),
		errors.Is(err, session.ErrAlreadyLoggedIn),
		errors.Is(err, session.ErrNoPendingCode),
		errors.Is(err, session.ErrClosed):
		return codes.FailedPrecondition
	case errors.Is(err, verify.ErrInvalidPhone),
		errors.Is(err, verify.ErrInvalidCode),
		errors.Is(err, session.ErrInvalidTab),
		errors.Is(err, chart.ErrEmptyData),
		errors.Is(err, chart.ErrInvalidType):
		return codes.InvalidArgument
	case errors.Is(err, verify.ErrCooldown),
		errors.Is(err, store.ErrQuotaExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, chart.ErrNotOwner):
		return codes.PermissionDenied
	case errors.Is(err, session.ErrTabNotFound),
		errors.Is(err, chart.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, session.ErrTabExists):
		return codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func tabID(tab string) string {
	if tab == "" {
		return session.MainTab
	}
	return tab
}
