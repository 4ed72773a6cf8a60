package blob

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/qchat/internal/metrics"
	"go.uber.org/zap"
)

// ErrUnavailable reports an attachment that never appeared within the retry budget.
var ErrUnavailable = errors.New("blob: attachment unavailable")

// RetryPolicy bounds how long a Loader waits for an attachment. Both budgets
// count against the same attempt number.
type RetryPolicy struct {
	MissingRetries  int
	MissingInterval time.Duration
	ErrorRetries    int
	ErrorInterval   time.Duration
}

// DefaultRetryPolicy waits up to 10 retries 400ms apart for a missing record
// and 5 retries 600ms apart after read errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MissingRetries:  10,
		MissingInterval: 400 * time.Millisecond,
		ErrorRetries:    5,
		ErrorInterval:   600 * time.Millisecond,
	}
}

// Outcome is the terminal state of a load.
type Outcome int

const (
	Found Outcome = iota
	Unavailable
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a finished load. Record is set only when Outcome is Found.
type Result struct {
	Outcome  Outcome
	Record   *Record
	Attempts int
	Err      error
}

// Loader fetches attachments that may not have been written yet.
type Loader struct {
	src    Getter
	policy RetryPolicy
	log    *zap.Logger
}

// NewLoader creates a loader over src.
func NewLoader(src Getter, policy RetryPolicy, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{src: src, policy: policy, log: logger}
}

// Load polls for id until it is found or the policy is exhausted. It never
// returns an error for a missing record; the outcome carries it instead.
// Context cancellation ends the load as Failed.
func (l *Loader) Load(ctx context.Context, id string) Result {
	for attempt := 0; ; attempt++ {
		rec, err := l.src.Get(ctx, id)

		var wait time.Duration
		switch {
		case err == nil && rec != nil:
			metrics.AttachmentFetches.WithLabelValues(Found.String()).Inc()
			return Result{Outcome: Found, Record: rec, Attempts: attempt + 1}
		case err == nil:
			if attempt >= l.policy.MissingRetries {
				metrics.AttachmentFetches.WithLabelValues(Unavailable.String()).Inc()
				return Result{Outcome: Unavailable, Attempts: attempt + 1, Err: ErrUnavailable}
			}
			wait = l.policy.MissingInterval
		default:
			if ctx.Err() != nil || attempt >= l.policy.ErrorRetries {
				l.log.Warn("attachment load failed", zap.String("id", id), zap.Int("attempts", attempt+1), zap.Error(err))
				metrics.AttachmentFetches.WithLabelValues(Failed.String()).Inc()
				return Result{Outcome: Failed, Attempts: attempt + 1, Err: err}
			}
			wait = l.policy.ErrorInterval
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			metrics.AttachmentFetches.WithLabelValues(Failed.String()).Inc()
			return Result{Outcome: Failed, Attempts: attempt + 1, Err: ctx.Err()}
		case <-t.C:
		}
	}
}
