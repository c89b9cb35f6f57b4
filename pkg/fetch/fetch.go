// Copyright © 2018 One Concern

// Package fetch transfers release archives from a mirror store to the local work file system.
package fetch

import (
	"context"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release"
	"github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var _ release.Fetcher = &StoreFetcher{}

// StoreFetcher copies release archives from a mirror store
type StoreFetcher struct {
	mirror storage.Store
	work   storage.Store
	l      *zap.Logger
}

// Option for the fetcher
type Option func(*StoreFetcher)

// Logger for the fetcher
func Logger(l *zap.Logger) Option {
	return func(f *StoreFetcher) {
		if l != nil {
			f.l = l
		}
	}
}

// New fetcher from a mirror store to a local work file system
func New(mirror storage.Store, work afero.Fs, opts ...Option) (*StoreFetcher, error) {
	local, err := localfs.NewAtomic(work)
	if err != nil {
		return nil, err
	}
	f := &StoreFetcher{
		mirror: mirror,
		work:   local,
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(f)
	}
	return f, nil
}

// Fetch the archive of a release, returning its path on the work file system
func (f *StoreFetcher) Fetch(ctx context.Context, descriptor model.ReleaseDescriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", status.ErrFetch.Wrap(err)
	}
	source := model.GetArchivePathToRelease(descriptor)
	dest := model.GetWorkPathToArchive(descriptor)

	t0 := time.Now()
	if err := storage.Copy(ctx, f.mirror, source, f.work, dest, storage.OverWrite); err != nil {
		return "", status.ErrFetch.WrapWithLog(f.l, err,
			zap.String("release", descriptor.Name), zap.String("source", source), zap.Stringer("mirror", f.mirror))
	}
	f.l.Info("fetched release archive",
		zap.String("release", descriptor.Name),
		zap.String("source", source),
		zap.String("archive", dest),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return dest, nil
}
