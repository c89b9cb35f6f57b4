// Copyright © 2018 One Concern

// Package localfs implements a storage.Store on a local file system, with afero
package localfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/status"
	"github.com/spf13/afero"
)

// New creates a new local file system backed storage model
func New(fs afero.Fs) storage.Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".modelcrawler", "objects"))
	}
	return &localFS{
		fs: fs,
	}
}

type localFS struct {
	fs afero.Fs
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorageAPI.Wrap(err)
	}

	return !fi.IsDir(), nil
}

type localReader struct {
	objectReader io.ReadCloser
}

func (r localReader) WriteTo(writer io.Writer) (n int64, err error) {
	return storage.PipeIO(writer, r.objectReader)
}

func (r localReader) Close() error {
	return r.objectReader.Close()
}

func (r localReader) Read(p []byte) (n int, err error) {
	return r.objectReader.Read(p)
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WrapMessage("key %q", key)
	}
	t, err := l.fs.Open(key)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return localReader{
		objectReader: t,
	}, nil
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	dir := filepath.Dir(key)
	if dir != "" {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrStorageAPI.WrapMessage("ensuring directories for %q: %v", key, err)
		}
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if exclusive {
		flag |= os.O_EXCL
	}
	target, err := l.fs.OpenFile(key, flag, 0600)
	if err != nil {
		if os.IsExist(err) {
			return status.ErrExists.WrapMessage("key %q", key)
		}
		return status.ErrStorageAPI.WrapMessage("create record for %q: %v", key, err)
	}

	// If reader implements writeto use it.
	if wt, ok := source.(io.WriterTo); ok {
		_, err = wt.WriteTo(target)
	} else {
		_, err = storage.PipeIO(target, source)
	}
	if err != nil {
		_ = target.Close()
		return status.ErrStorageAPI.WrapMessage("write record for %q: %v", key, err)
	}

	if err = target.Close(); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageAPI.WrapMessage("removing %q: %v", key, err)
	}
	return nil
}

func (l *localFS) Keys(ctx context.Context) ([]string, error) {
	const root = "."
	var res []string
	e := afero.Walk(l.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root || info.IsDir() {
			return nil
		}
		res = append(res, filepath.ToSlash(p))
		return nil
	})
	if e != nil {
		return nil, status.ErrStorageAPI.Wrap(e)
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) Clear(ctx context.Context) error {
	entries, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return status.ErrStorageAPI.Wrap(err)
	}
	for _, entry := range entries {
		if err := l.fs.RemoveAll(entry.Name()); err != nil {
			return status.ErrStorageAPI.Wrap(err)
		}
	}
	return nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	if root := l.root(); root != "" {
		return localfs + "@" + root
	}
	return localfs
}

// Location yields the URI of a key: a file URI on a base path file system, a mem URI otherwise
func (l *localFS) Location(key string) string {
	clean := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(key)), "/")
	root := l.root()
	if root == "" {
		return (&url.URL{Scheme: "mem", Path: "/" + clean}).String()
	}
	abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(clean)))
	if err != nil {
		abs = filepath.Join(root, filepath.FromSlash(clean))
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func (l *localFS) root() string {
	fs, ok := l.fs.(*afero.BasePathFs)
	if !ok {
		return ""
	}
	pp, err := fs.RealPath("")
	if err != nil {
		return ""
	}
	return pp
}

/* thread-safe local storage implementation.
 * use a decorator pattern to implement atomic Put()s via atomicity of afero.Fs.Rename()
 * for those filesystems where Rename() is thread-safe:  files are placed in a staging area,
 * then Rename()d into place.
 */

/* staging area key prefix and helper functions */
const (
	nestedPutStageName = ".put-stage"
)

func maybeInvalidKey(key string) error {
	pathComponents := strings.Split(strings.TrimLeft(filepath.ToSlash(key), "/"), "/")
	if len(pathComponents) == 0 {
		return nil
	}
	if pathComponents[0] == nestedPutStageName {
		return status.ErrInvalidResource.WrapMessage("key '%v' conflicts with put staging area name '%v'", key, nestedPutStageName)
	}
	return nil
}

func filterInvalidKeys(ks []string) []string {
	/* https://github.com/golang/go/wiki/SliceTricks#filtering-without-allocating */
	ksFiltered := ks[:0]
	for _, key := range ks {
		if err := maybeInvalidKey(key); err == nil {
			ksFiltered = append(ksFiltered, key)
		}
	}
	for i := len(ksFiltered); i < len(ks); i++ {
		ks[i] = ""
	}
	return ksFiltered
}

// NewAtomic creates a local file system store where objects only become visible once fully written
func NewAtomic(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".modelcrawler", "objects"))
	}
	/* the staging area exists within the afero.Fs itself */
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory for %q: %v", nestedPutStageName, err)
	}
	return &localFSAtomic{
		storeImpl: localFS{fs: fs},
	}, nil
}

type localFSAtomic struct {
	storeImpl localFS
}

/* implementing the Store interface is mostly a matter of wrapping the decorated localFs's
 * interface with helper functions.
 */

func (l *localFSAtomic) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	return l.storeImpl.Has(ctx, key)
}

func (l *localFSAtomic) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	return l.storeImpl.Get(ctx, key)
}

func (l *localFSAtomic) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Delete(ctx, key)
}

func (l *localFSAtomic) Keys(ctx context.Context) ([]string, error) {
	ks, err := l.storeImpl.Keys(ctx)
	if err != nil {
		return ks, err
	}
	return filterInvalidKeys(ks), nil
}

func (l *localFSAtomic) Clear(ctx context.Context) error {
	if err := l.storeImpl.Clear(ctx); err != nil {
		return err
	}
	return l.storeImpl.fs.MkdirAll(nestedPutStageName, 0700)
}

/* the Put() implementation is the only part of the Store interface implemented
 * outside of the functional wrap design pattern
 */
func (l *localFSAtomic) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if exclusive {
		has, err := l.storeImpl.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.WrapMessage("key %q", key)
		}
	}
	putStageKey := filepath.Join(nestedPutStageName, key)
	if err := l.storeImpl.Put(ctx, putStageKey, source, storage.OverWrite); err != nil {
		return err
	}
	/* Rename() doesn't create directories automatically */
	dir := filepath.Dir(key)
	if dir != "" {
		if err := l.storeImpl.fs.MkdirAll(dir, 0700); err != nil {
			return status.ErrStorageAPI.WrapMessage("ensuring directories for %q: %v", key, err)
		}
	}
	if err := l.storeImpl.fs.Rename(putStageKey, key); err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}

func (l *localFSAtomic) Location(key string) string {
	return l.storeImpl.Location(key)
}

func (l *localFSAtomic) String() string {
	const localfs = "localfs-atomic"
	if root := l.storeImpl.root(); root != "" {
		return localfs + "@" + root
	}
	return localfs
}
