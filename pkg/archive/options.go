// Copyright © 2018 One Concern

package archive

import (
	"strings"

	units "github.com/docker/go-units"
	"go.uber.org/zap"
)

// Default limits on extracted content
const (
	DefaultMaxFileSize  = 512 * units.MiB
	DefaultMaxTotalSize = 16 * units.GiB
)

// DefaultExtensions of model files
var DefaultExtensions = []string{".xml"}

// Option for the unpacker
type Option func(*Unpacker)

// MaxFileSize limits the size of any single extracted file
func MaxFileSize(size int64) Option {
	return func(u *Unpacker) {
		if size > 0 {
			u.maxFileSize = size
		}
	}
}

// MaxTotalSize limits the total size of the extracted content
func MaxTotalSize(size int64) Option {
	return func(u *Unpacker) {
		if size > 0 {
			u.maxTotalSize = size
		}
	}
}

// Extensions of the files recognized as models, e.g. ".xml"
func Extensions(exts ...string) Option {
	return func(u *Unpacker) {
		if len(exts) == 0 {
			return
		}
		u.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			u.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// Logger for the unpacker
func Logger(l *zap.Logger) Option {
	return func(u *Unpacker) {
		if l != nil {
			u.l = l
		}
	}
}

// ParseSize parses a human readable size such as "512MiB" or "2GB"
func ParseSize(size string) (int64, error) {
	return units.RAMInBytes(size)
}
