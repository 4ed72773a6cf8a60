package chart

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backends accepted by OpenShared.
const (
	BackendLocal    = "local"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// OpenShared connects the collection shared by every tab of a daemon. The
// local backend has no shared instance: it returns nil and each tab uses
// NewLocalCollection over its own store handle.
func OpenShared(ctx context.Context, backend, redisURL, databaseURL string, logger *zap.Logger) (Collection, error) {
	switch backend {
	case "", BackendLocal:
		return nil, nil
	case BackendRedis:
		c, err := NewRedisCollection(ctx, redisURL, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendPostgres:
		c, err := NewPostgresCollection(ctx, databaseURL, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, backend)
	}
}
