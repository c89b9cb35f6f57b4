// Copyright © 2018 One Concern

// Package postgres implements a version graph store on PostgreSQL.
//
// Versions are rows of the model_versions table. Parent links are enforced by a
// foreign key on (model_id, parent_version_id), and the latest version of a model is
// the one with the highest insertion sequence.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"go.uber.org/zap"
)

var _ graph.Store = &Store{}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	queryListModels = `SELECT DISTINCT model_id FROM model_versions ORDER BY model_id`

	queryListVersions = `SELECT version_id FROM model_versions WHERE model_id = $1 ORDER BY seq`

	queryLatest = `SELECT model_id, version_id, parent_version_id, source_location, metadata
		FROM model_versions WHERE model_id = $1 ORDER BY seq DESC LIMIT 1`

	queryGet = `SELECT model_id, version_id, parent_version_id, source_location, metadata
		FROM model_versions WHERE model_id = $1 AND version_id = $2`

	queryUpdateMetadata = `UPDATE model_versions SET metadata = $3 WHERE model_id = $1 AND version_id = $2`

	queryInsert = `INSERT INTO model_versions (model_id, version_id, parent_version_id, source_location, metadata)
		VALUES ($1, $2, $3, $4, $5)`
)

// Store is a PostgreSQL backed version graph store
type Store struct {
	db   *sql.DB
	name string
	l    *zap.Logger
}

// Option for the postgres store
type Option func(*Store)

// Logger for the store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// New store on an open database. The schema is expected to be migrated.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:   db,
		name: "postgres",
		l:    zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Open a database with the pgx driver, check connectivity and apply migrations
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, status.ErrInterface.Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapError(err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, status.ErrBackend.Wrap(err)
	}
	return New(db, opts...), nil
}

func (s *Store) String() string {
	return s.name
}

// Close the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListModelIDs(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, queryListModels)
}

func (s *Store) ListVersions(ctx context.Context, modelID string) ([]string, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return nil, err
	}
	return s.listStrings(ctx, queryListVersions, modelID)
}

func (s *Store) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, mapError(err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

func (s *Store) LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return model.ModelRecord{}, err
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, queryLatest, modelID))
	if err == sql.ErrNoRows {
		return model.ModelRecord{}, status.ErrNotFound.WrapMessage("model %q has no version", modelID)
	}
	return r, mapError(err)
}

func (s *Store) GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error) {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return model.ModelRecord{}, err
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, queryGet, modelID, versionID))
	if err == sql.ErrNoRows {
		return model.ModelRecord{}, status.ErrNotFound.WrapMessage("model %q, version %q", modelID, versionID)
	}
	return r, mapError(err)
}

func (s *Store) UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return err
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, queryUpdateMetadata, modelID, versionID, meta)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return status.ErrNotFound.WrapMessage("model %q, version %q", modelID, versionID)
	}
	return nil
}

func (s *Store) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	if err := graph.CheckInsert(modelID, versionID, parentVersionID, sourceLocation); err != nil {
		return err
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	parent := sql.NullString{String: parentVersionID, Valid: parentVersionID != ""}
	if _, err := s.db.ExecContext(ctx, queryInsert, modelID, versionID, parent, sourceLocation, meta); err != nil {
		return mapError(err)
	}
	s.l.Debug("version inserted", zap.String("model", modelID), zap.String("version", versionID), zap.String("parent", parentVersionID))
	return nil
}

func scanRecord(row *sql.Row) (model.ModelRecord, error) {
	var (
		r      model.ModelRecord
		parent sql.NullString
		meta   []byte
	)
	if err := row.Scan(&r.ModelID, &r.VersionID, &parent, &r.SourceLocation, &meta); err != nil {
		return model.ModelRecord{}, err
	}
	r.ParentVersionID = parent.String
	r.Metadata = model.Metadata{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return model.ModelRecord{}, status.ErrBackend.WrapMessage("invalid metadata for model %q, version %q: %v", r.ModelID, r.VersionID, err)
		}
	}
	return r, nil
}

func encodeMetadata(metadata model.Metadata) (string, error) {
	buf, err := json.Marshal(metadata.Clone())
	if err != nil {
		return "", status.ErrInterface.Wrap(err)
	}
	return string(buf), nil
}
