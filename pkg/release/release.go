// Copyright © 2018 One Concern

// Package release tracks the lifecycle of one published release of the model repository.
//
// A release goes through Discovered, Fetched and Unpacked states, in this order only.
// The archive handle and the content directory are write-once fields, set with an
// atomic compare-and-set: when several callers race, exactly one of them succeeds.
package release

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State of a release in its lifecycle
type State uint8

// Lifecycle states
const (
	StateDiscovered State = iota
	StateFetched
	StateUnpacked
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateFetched:
		return "fetched"
	case StateUnpacked:
		return "unpacked"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Fetcher knows how to produce a local archive for a release
type Fetcher interface {
	Fetch(context.Context, model.ReleaseDescriptor) (string, error)
}

// Unpacker knows how to extract a local archive into a destination directory.
//
// It returns the relative content path of every model found in the archive.
// Implementations must not leave partially extracted content behind on failure.
type Unpacker interface {
	Unpack(ctx context.Context, archivePath, dest string) (model.ModelPathMap, error)
}

type content struct {
	dir    string
	models model.ModelPathMap
}

// Release is one dated publication, with its local archive and extracted content
type Release struct {
	descriptor model.ReleaseDescriptor

	archive atomic.Pointer[string]
	content atomic.Pointer[content]

	// serializes Fetch and Unpack, which perform I/O before setting fields
	opMu sync.Mutex

	fs             afero.Fs
	discardArchive bool
	l              *zap.Logger
}

// New release, in the discovered state
func New(descriptor model.ReleaseDescriptor, opts ...Option) *Release {
	r := &Release{
		descriptor: descriptor,
		fs:         afero.NewOsFs(),
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Descriptor of the release
func (r *Release) Descriptor() model.ReleaseDescriptor {
	return r.descriptor
}

// Name of the release
func (r *Release) Name() string {
	return r.descriptor.Name
}

func (r *Release) String() string {
	return r.descriptor.String()
}

// SetArchiveHandle records the local archive of the release.
//
// This succeeds only once. Later attempts return ErrAlreadySet and leave the first value unchanged.
func (r *Release) SetArchiveHandle(handle string) error {
	if handle == "" {
		return status.ErrPreconditionNotMet.WrapMessage("release %s: empty archive handle", r.descriptor.Name)
	}
	if !r.archive.CompareAndSwap(nil, &handle) {
		return status.ErrAlreadySet.WrapMessage("release %s: archive handle is %q", r.descriptor.Name, *r.archive.Load())
	}
	return nil
}

// SetContentDirectory records the directory the archive was extracted to,
// together with the models found there.
//
// The archive handle must have been set first. This succeeds only once.
func (r *Release) SetContentDirectory(dir string, models model.ModelPathMap) error {
	if r.archive.Load() == nil {
		return status.ErrPreconditionNotMet.WrapMessage("release %s: content directory set before archive handle", r.descriptor.Name)
	}
	if dir == "" {
		return status.ErrPreconditionNotMet.WrapMessage("release %s: empty content directory", r.descriptor.Name)
	}
	owned := make(model.ModelPathMap, len(models))
	for id, p := range models {
		owned[id] = p
	}
	if !r.content.CompareAndSwap(nil, &content{dir: dir, models: owned}) {
		return status.ErrAlreadySet.WrapMessage("release %s: content directory is %q", r.descriptor.Name, r.content.Load().dir)
	}
	return nil
}

// Fetch the archive of the release
func (r *Release) Fetch(ctx context.Context, fetcher Fetcher) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.IsFetched() {
		return status.ErrAlreadySet.WrapMessage("release %s is already fetched", r.descriptor.Name)
	}
	handle, err := fetcher.Fetch(ctx, r.descriptor)
	if err != nil {
		if errors.Is(err, status.ErrFetch) {
			return err
		}
		return status.ErrFetch.Wrap(err)
	}
	if err := r.SetArchiveHandle(handle); err != nil {
		return err
	}
	r.l.Debug("release fetched", zap.String("release", r.descriptor.Name), zap.String("archive", handle))
	return nil
}

// Unpack the fetched archive of the release into dest.
//
// Extraction is all-or-nothing: on failure, no content directory is recorded and the
// release remains fetched, so unpacking may be retried.
func (r *Release) Unpack(ctx context.Context, unpacker Unpacker, dest string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	handle := r.archive.Load()
	if handle == nil {
		return status.ErrPreconditionNotMet.WrapMessage("release %s must be fetched before unpacking", r.descriptor.Name)
	}
	if r.IsUnpacked() {
		return status.ErrAlreadySet.WrapMessage("release %s is already unpacked", r.descriptor.Name)
	}

	models, err := unpacker.Unpack(ctx, *handle, dest)
	if err != nil {
		if rerr := r.fs.RemoveAll(dest); rerr != nil {
			r.l.Warn("cannot remove partial content", zap.String("dir", dest), zap.Error(rerr))
		}
		if errors.Is(err, status.ErrExtraction) {
			return err
		}
		return status.ErrExtraction.Wrap(err)
	}

	if err := r.SetContentDirectory(dest, models); err != nil {
		return err
	}
	r.l.Debug("release unpacked", zap.String("release", r.descriptor.Name), zap.Int("models", len(models)))

	if r.discardArchive {
		if err := r.fs.Remove(*handle); err != nil {
			r.l.Warn("cannot discard archive", zap.String("archive", *handle), zap.Error(err))
		}
	}
	return nil
}

// IsFetched tells if the archive handle is set
func (r *Release) IsFetched() bool {
	return r.archive.Load() != nil
}

// IsUnpacked tells if the content directory is set
func (r *Release) IsUnpacked() bool {
	return r.content.Load() != nil
}

// State of the release in its lifecycle
func (r *Release) State() State {
	switch {
	case r.IsUnpacked():
		return StateUnpacked
	case r.IsFetched():
		return StateFetched
	default:
		return StateDiscovered
	}
}

// ArchiveHandle yields the local archive, if fetched
func (r *Release) ArchiveHandle() (string, bool) {
	h := r.archive.Load()
	if h == nil {
		return "", false
	}
	return *h, true
}

// ContentDirectory yields the extraction directory, if unpacked
func (r *Release) ContentDirectory() (string, bool) {
	c := r.content.Load()
	if c == nil {
		return "", false
	}
	return c.dir, true
}

// ModelList yields the sorted identifiers of the models in the release.
//
// The list is empty until the release is unpacked.
func (r *Release) ModelList() []string {
	c := r.content.Load()
	if c == nil {
		return []string{}
	}
	ids := c.models.IDs()
	sort.Strings(ids)
	return ids
}

// ModelPath yields the content path of a model, relative to the content directory
func (r *Release) ModelPath(modelID string) (string, error) {
	c := r.content.Load()
	if c == nil {
		return "", status.ErrPreconditionNotMet.WrapMessage("release %s is not unpacked", r.descriptor.Name)
	}
	p, ok := c.models[modelID]
	if !ok {
		return "", status.ErrNotFound.WrapMessage("model %q in release %s", modelID, r.descriptor.Name)
	}
	return p, nil
}

// ModelFile yields the location of the content of a model on the work file system
func (r *Release) ModelFile(modelID string) (string, error) {
	p, err := r.ModelPath(modelID)
	if err != nil {
		return "", err
	}
	return path.Join(r.content.Load().dir, p), nil
}

// Fs is the work file system holding the local files of the release
func (r *Release) Fs() afero.Fs {
	return r.fs
}

// Cleanup removes the local archive and extracted content of the release.
//
// The lifecycle fields are left untouched: a cleaned up release is never processed again.
func (r *Release) Cleanup() error {
	var err error
	if h := r.archive.Load(); h != nil {
		if rerr := r.fs.Remove(*h); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
	}
	if c := r.content.Load(); c != nil {
		err = multierr.Append(err, r.fs.RemoveAll(c.dir))
	}
	return err
}
