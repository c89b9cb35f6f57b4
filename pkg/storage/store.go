// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
)

// Put modes
const (
	// NoOverWrite fails a Put on an existing key
	NoOverWrite = true
	// OverWrite replaces the content of an existing key
	OverWrite = false
)

// Store implementations know how to write entries to a K/V model.Store.
//
// Typically this is something file system-like. Examples are S3, local FS, NFS, ...
// Implementations of this interface are assumed to be fairly simple.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// Locator knows how to express the location of a key as an absolute URI
type Locator interface {
	Location(key string) string
}

// PipeIO copies a reader into a writer, with a buffer
func PipeIO(writer io.Writer, reader io.Reader) (n int64, err error) {
	buf := make([]byte, 1024*1024)
	return io.CopyBuffer(writer, reader, buf)
}
