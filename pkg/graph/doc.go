// Copyright © 2018 One Concern

// Package graph defines the version graph store: the persistence boundary holding,
// for every model, the tree of its versions.
//
// Backends are found in subpackages:
//   - memory: in-process maps
//   - bdgr: embedded badger key-value store
//   - postgres: PostgreSQL, with embedded schema migrations
//
// Stores may be decorated with WithRetry, to bound and retry calls, and Instrument,
// to collect metrics.
package graph
