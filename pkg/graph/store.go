// Copyright © 2018 One Concern

package graph

import (
	"context"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
)

// Store persists the version lineage of models.
//
// Listings on an unknown model are empty. Fetching a single record of an unknown
// model or version fails with status.ErrNotFound.
//
// InsertVersion rejects an existing (model, version) pair with status.ErrConflict,
// and a non-empty parent that does not exist for the same model with
// status.ErrParentNotFound. A failed insert leaves the store unchanged.
//
// The latest version of a model is its most recently inserted version.
type Store interface {
	ListModelIDs(context.Context) ([]string, error)
	ListVersions(ctx context.Context, modelID string) ([]string, error)
	LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error)
	GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error)
	UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error
	InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error
	String() string
	Close() error
}

// Insert a version without metadata
func Insert(ctx context.Context, s Store, modelID, versionID, parentVersionID, sourceLocation string) error {
	return s.InsertVersion(ctx, modelID, versionID, parentVersionID, sourceLocation, nil)
}

// InsertRecord inserts a version from a record, with an explicit parent.
//
// The parent carried by the record is ignored.
func InsertRecord(ctx context.Context, s Store, record model.ModelRecord, parentVersionID string) error {
	return s.InsertVersion(ctx, record.ModelID, record.VersionID, parentVersionID, record.SourceLocation, record.Metadata)
}

// CheckInsert validates the arguments of an insert. Backends call it before anything else.
func CheckInsert(modelID, versionID, parentVersionID, sourceLocation string) error {
	r := model.ModelRecord{
		ModelID:         modelID,
		VersionID:       versionID,
		ParentVersionID: parentVersionID,
		SourceLocation:  sourceLocation,
	}
	if err := r.Validate(); err != nil {
		return status.ErrInterface.Wrap(err)
	}
	return nil
}

// CheckModelID validates a model identifier sent to a store
func CheckModelID(modelID string) error {
	if err := model.ValidateID("model", modelID); err != nil {
		return status.ErrInterface.Wrap(err)
	}
	return nil
}

// CheckVersion validates a model and version identifiers sent to a store
func CheckVersion(modelID, versionID string) error {
	if err := CheckModelID(modelID); err != nil {
		return err
	}
	if err := model.ValidateID("version", versionID); err != nil {
		return status.ErrInterface.Wrap(err)
	}
	return nil
}

// Kind of a store error, as a short label suitable for logs and metrics
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, status.ErrNotFound):
		return "not_found"
	case errors.Is(err, status.ErrConflict):
		return "conflict"
	case errors.Is(err, status.ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, status.ErrCommunication):
		return "communication"
	case errors.Is(err, status.ErrInterface):
		return "interface"
	case errors.Is(err, status.ErrBackend):
		return "backend"
	default:
		return "other"
	}
}
