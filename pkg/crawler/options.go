// Copyright © 2018 One Concern

package crawler

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultConcurrency is the number of models processed concurrently within a release
	DefaultConcurrency = 8

	// DefaultInsertTimeout bounds an insert once started, even if the run is cancelled
	DefaultInsertTimeout = 30 * time.Second
)

// Option for the crawler
type Option func(*Crawler)

// Concurrency sets the number of models processed concurrently within a release
func Concurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Namer sets the generator of version ids
func Namer(namer VersionNamer) Option {
	return func(c *Crawler) {
		if namer != nil {
			c.namer = namer
		}
	}
}

// InsertTimeout bounds the time allotted to an insert, which is never interrupted by cancellation
func InsertTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.insertTimeout = d
		}
	}
}

// WorkFs sets the file system where releases are fetched and unpacked
func WorkFs(fs afero.Fs) Option {
	return func(c *Crawler) {
		if fs != nil {
			c.workFs = fs
		}
	}
}

// KeepLocal keeps the local archive and content of releases after processing
func KeepLocal(keep bool) Option {
	return func(c *Crawler) {
		c.keepLocal = keep
	}
}

// DiscardArchive removes the local archive of a release as soon as it is unpacked
func DiscardArchive(discard bool) Option {
	return func(c *Crawler) {
		c.discardArchive = discard
	}
}

// Resume skips releases marked as fully processed in the content store.
//
// Only enable this when the graph store outlives the run.
func Resume(resume bool) Option {
	return func(c *Crawler) {
		c.resume = resume
	}
}

// Logger for the crawler
func Logger(l *zap.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.l = l
		}
	}
}
