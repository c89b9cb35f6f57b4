// Copyright © 2018 One Concern

package release

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Option for a release
type Option func(*Release)

// WorkFs sets the file system holding the local archive and content. Defaults to the OS file system.
func WorkFs(fs afero.Fs) Option {
	return func(r *Release) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// DiscardArchive removes the local archive as soon as the release is unpacked
func DiscardArchive(discard bool) Option {
	return func(r *Release) {
		r.discardArchive = discard
	}
}

// Logger for the release
func Logger(l *zap.Logger) Option {
	return func(r *Release) {
		if l != nil {
			r.l = l
		}
	}
}
