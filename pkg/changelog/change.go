// Copyright © 2018 One Concern

package changelog

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// KindAdded indicates a model seen for the first time
	KindAdded Kind = iota + 1
	// KindModified indicates a model whose content changed
	KindModified
	// KindRemoved indicates a model no longer published
	KindRemoved
)

// Kind qualifies a change
type Kind uint8

func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// OrderingKey totally orders changes: by detection time, then by admission sequence
type OrderingKey struct {
	DetectedAt time.Time
	Seq        uint64
}

// Compare returns -1, 0 or +1 when k is respectively before, equal to or after other
func (k OrderingKey) Compare(other OrderingKey) int {
	switch {
	case k.DetectedAt.Before(other.DetectedAt):
		return -1
	case k.DetectedAt.After(other.DetectedAt):
		return 1
	case k.Seq < other.Seq:
		return -1
	case k.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// bytes encodes the key so that the lexicographic order of encoded keys
// is the order of keys: signed seconds (with the sign bit flipped), nanoseconds, sequence.
func (k OrderingKey) bytes() []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint64(b[0:8], uint64(k.DetectedAt.Unix())^(1<<63))
	binary.BigEndian.PutUint32(b[8:12], uint32(k.DetectedAt.Nanosecond()))
	binary.BigEndian.PutUint64(b[12:20], k.Seq)
	return b
}

// Change is an immutable record of one detected change to one model
type Change struct {
	modelID    string
	kind       Kind
	detectedAt time.Time
	seq        uint64
	release    string
	path       string
	digest     string
	versionID  string
}

// ChangeOption is a functor to build changes
type ChangeOption func(*Change)

// InRelease sets the name of the release where the change was detected
func InRelease(name string) ChangeOption {
	return func(c *Change) {
		c.release = name
	}
}

// AtPath sets the content path of the model, relative to its release
func AtPath(p string) ChangeOption {
	return func(c *Change) {
		c.path = p
	}
}

// WithDigest sets the digest of the model content
func WithDigest(digest string) ChangeOption {
	return func(c *Change) {
		c.digest = digest
	}
}

// ForVersion sets the version recorded for this change
func ForVersion(versionID string) ChangeOption {
	return func(c *Change) {
		c.versionID = versionID
	}
}

// NewChange builds a change to a model, detected at some time
func NewChange(modelID string, kind Kind, detectedAt time.Time, opts ...ChangeOption) Change {
	c := Change{
		modelID:    modelID,
		kind:       kind,
		detectedAt: detectedAt.UTC(),
	}
	for _, apply := range opts {
		apply(&c)
	}
	return c
}

// ModelID of the changed model
func (c Change) ModelID() string { return c.modelID }

// Kind of change
func (c Change) Kind() Kind { return c.kind }

// DetectedAt yields the detection time
func (c Change) DetectedAt() time.Time { return c.detectedAt }

// Release yields the name of the release where the change was detected
func (c Change) Release() string { return c.release }

// Path yields the relative content path of the model
func (c Change) Path() string { return c.path }

// Digest yields the digest of the model content
func (c Change) Digest() string { return c.digest }

// VersionID yields the version recorded for this change, if any
func (c Change) VersionID() string { return c.versionID }

// Key yields the ordering key. The sequence is only set once the change is admitted to a log.
func (c Change) Key() OrderingKey {
	return OrderingKey{DetectedAt: c.detectedAt, Seq: c.seq}
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s at %s [%s]", c.modelID, c.kind, c.detectedAt.Format(time.RFC3339), c.release)
}
