// Copyright © 2018 One Concern

// Package status declares error constants returned by the crawler package.
package status

import "github.com/oneconcern/modelcrawler/pkg/errors"

var (
	// ErrInvalidConfig indicates a crawler built with missing or unusable collaborators
	ErrInvalidConfig = errors.New("invalid crawler configuration")

	// ErrCatalog indicates that the list of releases could not be retrieved
	ErrCatalog = errors.New("cannot list releases")

	// ErrModel indicates that processing a model failed. The model is skipped for the rest of the run.
	ErrModel = errors.New("model processing failed")

	// ErrContent indicates that the content of a model version could not be archived
	ErrContent = errors.New("cannot archive model content")

	// ErrNaming indicates that no version id could be generated
	ErrNaming = errors.New("cannot name version")
)
