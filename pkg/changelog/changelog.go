// Copyright © 2018 One Concern

// Package changelog keeps the ordered history of detected changes, per model.
//
// A ChangeLog is owned by exactly one model identifier. Changes are kept in an
// immutable radix tree keyed by their ordering key, so that iterating a log works
// on a consistent snapshot, unaffected by concurrent appends.
package changelog

import (
	"iter"
	"sort"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/modelcrawler/pkg/changelog/status"
)

// ChangeLog is the ordered collection of changes for one model
type ChangeLog struct {
	modelID string

	mu   sync.Mutex
	tree *iradix.Tree
	seq  uint64
}

// New change log for a model
func New(modelID string) *ChangeLog {
	return &ChangeLog{
		modelID: modelID,
		tree:    iradix.New(),
	}
}

// ModelID owning this log
func (l *ChangeLog) ModelID() string {
	return l.modelID
}

// Append admits a change to the log and returns it, with its admission sequence set.
//
// A change for another model is rejected with ErrModelMismatch and leaves the log unchanged.
func (l *ChangeLog) Append(change Change) (Change, error) {
	if change.modelID != l.modelID {
		return Change{}, status.ErrModelMismatch.WrapMessage("expected model %q, got %q", l.modelID, change.modelID)
	}
	if change.detectedAt.IsZero() {
		return Change{}, status.ErrInvalidChange.WrapMessage("change for model %q has no detection time", change.modelID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	change.seq = l.seq
	l.tree, _, _ = l.tree.Insert(change.Key().bytes(), change)
	return change, nil
}

// Latest yields the most recent change, or ErrEmpty
func (l *ChangeLog) Latest() (Change, error) {
	_, v, ok := l.snapshot().Root().Maximum()
	if !ok {
		return Change{}, status.ErrEmpty.WrapMessage("model %q", l.modelID)
	}
	return v.(Change), nil
}

// Len yields the number of changes in the log
func (l *ChangeLog) Len() int {
	return l.snapshot().Len()
}

// All yields the changes in ascending order.
//
// The sequence may be iterated several times. Each iteration works on the state
// of the log at the time it starts.
func (l *ChangeLog) All() iter.Seq[Change] {
	return func(yield func(Change) bool) {
		it := l.snapshot().Root().Iterator()
		for {
			_, v, ok := it.Next()
			if !ok {
				return
			}
			if !yield(v.(Change)) {
				return
			}
		}
	}
}

func (l *ChangeLog) snapshot() *iradix.Tree {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree
}

// Registry hands out change logs, one per model
type Registry struct {
	mu   sync.Mutex
	logs map[string]*ChangeLog
}

// NewRegistry builds an empty registry of change logs
func NewRegistry() *Registry {
	return &Registry{logs: make(map[string]*ChangeLog)}
}

// Get the change log for a model, creating it if needed
func (r *Registry) Get(modelID string) *ChangeLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[modelID]
	if !ok {
		l = New(modelID)
		r.logs[modelID] = l
	}
	return l
}

// Lookup the change log for a model, without creating it
func (r *Registry) Lookup(modelID string) (*ChangeLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[modelID]
	return l, ok
}

// Models yields the sorted identifiers of models with a change log
func (r *Registry) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.logs))
	for id := range r.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
