// Copyright © 2018 One Concern

package graph

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"go.uber.org/zap"
)

// Default retry settings
const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

// RetryOption configures the retrying decorator
type RetryOption func(*retryStore)

// CallTimeout bounds each individual call to the backend
func CallTimeout(d time.Duration) RetryOption {
	return func(r *retryStore) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// MaxRetries bounds the number of retries after a communication failure
func MaxRetries(n uint64) RetryOption {
	return func(r *retryStore) {
		r.maxRetries = n
	}
}

// Intervals sets the initial and maximum wait between retries
func Intervals(initial, max time.Duration) RetryOption {
	return func(r *retryStore) {
		if initial > 0 {
			r.initial = initial
		}
		if max > 0 {
			r.max = max
		}
	}
}

// RetryLogger logs retried calls
func RetryLogger(l *zap.Logger) RetryOption {
	return func(r *retryStore) {
		if l != nil {
			r.l = l
		}
	}
}

// WithRetry decorates a store so that every call is bounded by a timeout, and calls
// failing with status.ErrCommunication are retried with an exponential backoff.
//
// Other errors are returned immediately.
func WithRetry(s Store, opts ...RetryOption) Store {
	r := &retryStore{
		Store:      s,
		timeout:    DefaultCallTimeout,
		maxRetries: DefaultMaxRetries,
		initial:    DefaultInitialInterval,
		max:        DefaultMaxInterval,
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

type retryStore struct {
	Store
	timeout    time.Duration
	maxRetries uint64
	initial    time.Duration
	max        time.Duration
	l          *zap.Logger
}

func (r *retryStore) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.max
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)
}

// do runs a call until it succeeds, fails with a non retryable error, or retries are exhausted
func (r *retryStore) do(ctx context.Context, op string, call func(context.Context) error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		err := call(cctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, status.ErrCommunication):
			return err
		case cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			return status.ErrCommunication.WrapMessage("%s timed out after %v: %v", op, r.timeout, err)
		default:
			return backoff.Permanent(err)
		}
	}, r.policy(ctx), func(err error, wait time.Duration) {
		r.l.Warn("retrying graph store call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (r *retryStore) ListModelIDs(ctx context.Context) ([]string, error) {
	var res []string
	err := r.do(ctx, "ListModelIDs", func(cctx context.Context) error {
		var err error
		res, err = r.Store.ListModelIDs(cctx)
		return err
	})
	return res, err
}

func (r *retryStore) ListVersions(ctx context.Context, modelID string) ([]string, error) {
	var res []string
	err := r.do(ctx, "ListVersions", func(cctx context.Context) error {
		var err error
		res, err = r.Store.ListVersions(cctx, modelID)
		return err
	})
	return res, err
}

func (r *retryStore) LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error) {
	var res model.ModelRecord
	err := r.do(ctx, "LatestVersion", func(cctx context.Context) error {
		var err error
		res, err = r.Store.LatestVersion(cctx, modelID)
		return err
	})
	return res, err
}

func (r *retryStore) GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error) {
	var res model.ModelRecord
	err := r.do(ctx, "GetVersion", func(cctx context.Context) error {
		var err error
		res, err = r.Store.GetVersion(cctx, modelID, versionID)
		return err
	})
	return res, err
}

func (r *retryStore) UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error {
	return r.do(ctx, "UpdateMetadata", func(cctx context.Context) error {
		return r.Store.UpdateMetadata(cctx, modelID, versionID, metadata)
	})
}

// InsertVersion retries inserts after a communication failure.
//
// When a retried insert reports a conflict, the first attempt may have been applied
// even though its response was lost: the insert is then considered successful if the
// stored version matches the requested one.
func (r *retryStore) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	failedOnce := false
	return r.do(ctx, "InsertVersion", func(cctx context.Context) error {
		err := r.Store.InsertVersion(cctx, modelID, versionID, parentVersionID, sourceLocation, metadata)
		if err != nil && failedOnce && errors.Is(err, status.ErrConflict) {
			existing, gerr := r.Store.GetVersion(cctx, modelID, versionID)
			if gerr == nil && existing.ParentVersionID == parentVersionID && existing.SourceLocation == sourceLocation {
				r.l.Info("insert applied by an earlier attempt", zap.String("model", modelID), zap.String("version", versionID))
				return nil
			}
		}
		if err != nil && (errors.Is(err, status.ErrCommunication) || cctx.Err() == context.DeadlineExceeded) {
			failedOnce = true
		}
		return err
	})
}
