// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the graph.Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/graph and one
// of its backends.
package status

import "github.com/oneconcern/modelcrawler/pkg/errors"

var (
	// ErrCommunication indicates an unreachable or timed out backend. Calls failing with this error may be retried.
	ErrCommunication = errors.New("graph store communication failure")

	// ErrInterface indicates a malformed request. This is a caller bug and must never be retried.
	ErrInterface = errors.New("invalid graph store request")

	// ErrBackend indicates an internal inconsistency reported by the backend
	ErrBackend = errors.New("graph store backend error")

	// ErrNotFound indicates that the requested model or version does not exist
	ErrNotFound = errors.New("version not found")

	// ErrConflict indicates that the version already exists for this model
	ErrConflict = errors.New("version already exists")

	// ErrParentNotFound indicates that the parent of an inserted version does not exist for this model
	ErrParentNotFound = errors.New("parent version not found")
)
