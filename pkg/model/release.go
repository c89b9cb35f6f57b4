// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"sort"
	"time"
)

// ReleaseDescriptor describes one dated publication of the model repository
type ReleaseDescriptor struct {
	Name      string    `json:"name" yaml:"name"`
	Directory string    `json:"directory" yaml:"directory"` // origin directory in the mirror
	Date      time.Time `json:"date" yaml:"date"`
	Archive   string    `json:"archive" yaml:"archive"` // archive object name, within Directory
	_         struct{}
}

// Before tells if this release comes strictly before another one.
//
// Releases are ordered by date. Releases published at the same date are ordered by name.
func (r ReleaseDescriptor) Before(other ReleaseDescriptor) bool {
	if !r.Date.Equal(other.Date) {
		return r.Date.Before(other.Date)
	}
	return r.Name < other.Name
}

func (r ReleaseDescriptor) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Date.Format("2006-01-02"))
}

// Validate a release descriptor
func (r ReleaseDescriptor) Validate() error {
	if err := ValidateID("release", r.Name); err != nil {
		return err
	}
	if r.Date.IsZero() {
		return fmt.Errorf("empty field: release %q has no date", r.Name)
	}
	if r.Archive == "" {
		return fmt.Errorf("empty field: release %q has no archive", r.Name)
	}
	return nil
}

// SortReleases sorts releases in ascending order
func SortReleases(releases []ReleaseDescriptor) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Before(releases[j])
	})
}

// ModelPathMap maps model identifiers to content paths, relative to the content directory of a release
type ModelPathMap map[string]string

// IDs yields the sorted model identifiers in the map
func (m ModelPathMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
