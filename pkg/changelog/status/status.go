// Copyright © 2018 One Concern

// Package status declares error constants returned by the changelog package.
package status

import "github.com/oneconcern/modelcrawler/pkg/errors"

var (
	// ErrModelMismatch indicates an attempt to record a change on the change log of another model
	ErrModelMismatch = errors.New("change does not belong to this model")

	// ErrEmpty indicates that no change has been recorded yet
	ErrEmpty = errors.New("no change recorded")

	// ErrInvalidChange indicates a change that cannot be ordered
	ErrInvalidChange = errors.New("invalid change")
)
