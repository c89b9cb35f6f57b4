// Copyright © 2018 One Concern

// Package memory implements an in-process version graph store
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
)

var _ graph.Store = &Store{}

type lineage struct {
	versions map[string]model.ModelRecord
	order    []string // insertion order, the last one is the latest
}

// Store keeps version graphs in memory
type Store struct {
	mu     sync.RWMutex
	models map[string]*lineage
}

// New empty in-memory store
func New() *Store {
	return &Store{models: make(map[string]*lineage)}
}

func (s *Store) String() string {
	return "memory"
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) ListModelIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.models))
	for id := range s.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListVersions(ctx context.Context, modelID string) ([]string, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.models[modelID]
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), l.order...), nil
}

func (s *Store) LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return model.ModelRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.models[modelID]
	if !ok || len(l.order) == 0 {
		return model.ModelRecord{}, status.ErrNotFound.WrapMessage("model %q has no version", modelID)
	}
	return clone(l.versions[l.order[len(l.order)-1]]), nil
}

func (s *Store) GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error) {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return model.ModelRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.lookup(modelID, versionID)
	if !ok {
		return model.ModelRecord{}, status.ErrNotFound.WrapMessage("model %q, version %q", modelID, versionID)
	}
	return clone(r), nil
}

func (s *Store) UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookup(modelID, versionID)
	if !ok {
		return status.ErrNotFound.WrapMessage("model %q, version %q", modelID, versionID)
	}
	r.Metadata = metadata.Clone()
	s.models[modelID].versions[versionID] = r
	return nil
}

func (s *Store) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	if err := graph.CheckInsert(modelID, versionID, parentVersionID, sourceLocation); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return status.ErrCommunication.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup(modelID, versionID); exists {
		return status.ErrConflict.WrapMessage("model %q, version %q", modelID, versionID)
	}
	if parentVersionID != "" {
		if _, exists := s.lookup(modelID, parentVersionID); !exists {
			return status.ErrParentNotFound.WrapMessage("model %q, parent version %q", modelID, parentVersionID)
		}
	}

	l, ok := s.models[modelID]
	if !ok {
		l = &lineage{versions: make(map[string]model.ModelRecord)}
		s.models[modelID] = l
	}
	l.versions[versionID] = model.ModelRecord{
		ModelID:         modelID,
		VersionID:       versionID,
		ParentVersionID: parentVersionID,
		SourceLocation:  sourceLocation,
		Metadata:        metadata.Clone(),
	}
	l.order = append(l.order, versionID)
	return nil
}

func (s *Store) lookup(modelID, versionID string) (model.ModelRecord, bool) {
	l, ok := s.models[modelID]
	if !ok {
		return model.ModelRecord{}, false
	}
	r, ok := l.versions[versionID]
	return r, ok
}

func clone(r model.ModelRecord) model.ModelRecord {
	r.Metadata = r.Metadata.Clone()
	return r
}
