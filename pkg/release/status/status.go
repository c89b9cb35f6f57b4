// Copyright © 2018 One Concern

// Package status declares error constants returned by the release lifecycle.
package status

import "github.com/oneconcern/modelcrawler/pkg/errors"

var (
	// ErrAlreadySet indicates a second attempt to set a write-once field
	ErrAlreadySet = errors.New("field is already set")

	// ErrPreconditionNotMet indicates a lifecycle transition attempted out of order
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrFetch indicates that the archive of a release could not be fetched
	ErrFetch = errors.New("cannot fetch release archive")

	// ErrExtraction indicates a corrupt or unreadable release archive
	ErrExtraction = errors.New("cannot extract release archive")

	// ErrNotFound indicates that a model is not part of the release
	ErrNotFound = errors.New("model not found in release")
)
