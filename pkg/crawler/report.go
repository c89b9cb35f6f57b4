// Copyright © 2018 One Concern

package crawler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oneconcern/modelcrawler/pkg/changelog"
	"github.com/oneconcern/modelcrawler/pkg/crawler/status"
	"go.uber.org/multierr"
)

// Report summarizes a crawler run
type Report struct {
	mu sync.Mutex

	Processed []string         `json:"processed" yaml:"processed"` // releases processed, in order
	Skipped   []string         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Changes   map[string]int   `json:"changes" yaml:"changes"` // by kind of change
	Unchanged int              `json:"unchanged" yaml:"unchanged"`
	Failed    map[string]error `json:"-" yaml:"-"` // by model id
}

func newReport() *Report {
	return &Report{
		Processed: []string{},
		Changes:   make(map[string]int),
		Failed:    make(map[string]error),
	}
}

func (r *Report) change(kind changelog.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Changes[kind.String()]++
}

func (r *Report) unchanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unchanged++
}

func (r *Report) fail(modelID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[modelID] = err
}

func (r *Report) failed(modelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Failed[modelID]
	return ok
}

func (r *Report) processed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed = append(r.Processed, name)
}

func (r *Report) skipped(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, name)
}

// Count the changes of some kind
func (r *Report) Count(kind changelog.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Changes[kind.String()]
}

// FailedModels yields the sorted ids of the models which failed during the run
func (r *Report) FailedModels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Err combines model failures, or returns nil when all models were processed
func (r *Report) Err() error {
	var err error
	for _, id := range r.FailedModels() {
		r.mu.Lock()
		merr := r.Failed[id]
		r.mu.Unlock()
		err = multierr.Append(err, status.ErrModel.Wrap(fmt.Errorf("model %q: %w", id, merr)))
	}
	return err
}
