// Copyright © 2018 One Concern

// Package catalog reads and maintains the list of published releases, kept as a YAML
// descriptor in the mirror store.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	storagestatus "github.com/oneconcern/modelcrawler/pkg/storage/status"
	"gopkg.in/yaml.v2"
)

var (
	// ErrInvalidCatalog indicates a release catalog that cannot be read
	ErrInvalidCatalog = errors.New("invalid release catalog")

	// ErrDuplicateRelease indicates a release name declared twice in the catalog
	ErrDuplicateRelease = errors.New("duplicate release")
)

// accepted layouts for release dates
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

type entry struct {
	Name      string `yaml:"name"`
	Directory string `yaml:"directory,omitempty"`
	Date      string `yaml:"date"`
	Archive   string `yaml:"archive"`
}

type descriptor struct {
	Releases []entry `yaml:"releases"`
}

// Store is a release catalog kept in a storage.Store
type Store struct {
	mirror storage.Store
	mu     sync.Mutex
}

// New release catalog on a mirror store
func New(mirror storage.Store) *Store {
	return &Store{mirror: mirror}
}

// Releases lists the releases in the catalog, in ascending order.
//
// A missing catalog is an empty catalog.
func (s *Store) Releases(ctx context.Context) ([]model.ReleaseDescriptor, error) {
	d, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	releases := make([]model.ReleaseDescriptor, 0, len(d.Releases))
	seen := make(map[string]struct{}, len(d.Releases))
	for _, e := range d.Releases {
		r, err := e.toDescriptor()
		if err != nil {
			return nil, err
		}
		if _, ok := seen[r.Name]; ok {
			return nil, ErrDuplicateRelease.WrapMessage("release %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		releases = append(releases, r)
	}
	model.SortReleases(releases)
	return releases, nil
}

// Add a release to the catalog
func (s *Store) Add(ctx context.Context, release model.ReleaseDescriptor) error {
	if err := release.Validate(); err != nil {
		return ErrInvalidCatalog.Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read(ctx)
	if err != nil {
		return err
	}
	for _, e := range d.Releases {
		if e.Name == release.Name {
			return ErrDuplicateRelease.WrapMessage("release %q", release.Name)
		}
	}
	d.Releases = append(d.Releases, entry{
		Name:      release.Name,
		Directory: release.Directory,
		Date:      release.Date.UTC().Format(time.RFC3339),
		Archive:   release.Archive,
	})

	buf, err := yaml.Marshal(d)
	if err != nil {
		return ErrInvalidCatalog.Wrap(err)
	}
	return s.mirror.Put(ctx, model.GetPathToCatalog(), bytes.NewReader(buf), storage.OverWrite)
}

func (s *Store) read(ctx context.Context) (descriptor, error) {
	var d descriptor
	rdr, err := s.mirror.Get(ctx, model.GetPathToCatalog())
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return d, nil
		}
		return d, err
	}
	defer rdr.Close()

	buf, err := io.ReadAll(rdr)
	if err != nil {
		return d, err
	}
	if err := yaml.UnmarshalStrict(buf, &d); err != nil {
		return d, ErrInvalidCatalog.Wrap(err)
	}
	return d, nil
}

func (e entry) toDescriptor() (model.ReleaseDescriptor, error) {
	r := model.ReleaseDescriptor{
		Name:      e.Name,
		Directory: e.Directory,
		Archive:   e.Archive,
	}
	if e.Date != "" {
		t, err := ParseDate(e.Date)
		if err != nil {
			return r, ErrInvalidCatalog.WrapMessage("release %q: %v", e.Name, err)
		}
		r.Date = t
	}
	if err := r.Validate(); err != nil {
		return r, ErrInvalidCatalog.Wrap(err)
	}
	return r, nil
}

// ParseDate parses a release date, as a full RFC3339 timestamp, a timestamp without zone or a day.
//
// Dates without a zone are UTC.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}
