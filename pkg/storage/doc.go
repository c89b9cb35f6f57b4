// Copyright © 2018 One Concern

// Package storage provides interface to handle backend storage objects.
//
// The crawler uses storage for two concerns: the mirror holding the release catalog
// and release archives, and the content store holding archived model files.
//
// This package supports the following backends:
//   - local file system (afero), see localfs
package storage
