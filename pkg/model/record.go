// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"net/url"
	"time"
)

// Well-known metadata keys recorded on versions by the crawler
const (
	MetaRelease     = "release"
	MetaReleaseDate = "releaseDate"
	MetaPath        = "path"
	MetaDigest      = "digest"
	MetaRemovedIn   = "removedIn"
	MetaRemovedAt   = "removedAt"
)

// Metadata is an unordered mapping of unique keys to values, attached to a model version
type Metadata map[string]string

// Clone returns a copy of the metadata, never nil
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// ReleaseDate parses the release date recorded in the metadata, if any
func (m Metadata) ReleaseDate() (time.Time, bool) {
	return m.date(MetaReleaseDate)
}

// RemovalDate parses the date of the release a model was removed from, if any
func (m Metadata) RemovalDate() (time.Time, bool) {
	return m.date(MetaRemovedAt)
}

func (m Metadata) date(key string) (time.Time, bool) {
	v, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ModelRecord is one persisted version of one model
type ModelRecord struct {
	ModelID         string   `json:"modelId" yaml:"modelId"`
	VersionID       string   `json:"versionId" yaml:"versionId"`
	ParentVersionID string   `json:"parentVersionId,omitempty" yaml:"parentVersionId,omitempty"` // empty for the first version of a model
	SourceLocation  string   `json:"sourceLocation" yaml:"sourceLocation"`
	Metadata        Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	_               struct{}
}

// IsRoot tells if this version is the first version of its model
func (r ModelRecord) IsRoot() bool {
	return r.ParentVersionID == ""
}

// Validate the record before persisting it
func (r ModelRecord) Validate() error {
	if err := ValidateID("model", r.ModelID); err != nil {
		return err
	}
	if err := ValidateID("version", r.VersionID); err != nil {
		return err
	}
	if r.ParentVersionID != "" {
		if err := ValidateID("parent version", r.ParentVersionID); err != nil {
			return err
		}
		if r.ParentVersionID == r.VersionID {
			return fmt.Errorf("invalid parent: version %q cannot be its own parent", r.VersionID)
		}
	}
	return ValidateLocation(r.SourceLocation)
}

// ValidateLocation checks that a source location is an absolute URI
func ValidateLocation(location string) error {
	if location == "" {
		return fmt.Errorf("empty field: source location is empty")
	}
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid source location %q: %v", location, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid source location %q: expected an absolute URI", location)
	}
	return nil
}
