// Copyright © 2018 One Concern

// Package bdgr implements a version graph store embedded in a badger key-value store.
//
// Keys are:
//   - version:{model}/{version}: the JSON record of a version, with its insertion sequence
//   - head:{model}: the latest version of a model
//
// Insertion sequences are kept per model, so that inserts for different models never conflict.
package bdgr

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"go.uber.org/zap"
)

var _ graph.Store = &Store{}

type versionEntry struct {
	Record model.ModelRecord `json:"record"`
	Seq    uint64            `json:"seq"`
}

// Store is a badger backed version graph store
type Store struct {
	dir   string
	db    *badger.DB
	l     *zap.Logger
	init  sync.Once
	close sync.Once
}

// Option for the badger store
type Option func(*Store)

// Logger for the store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// New badger store in a directory. The database is opened by Initialize.
func New(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = ".modelcrawler/graph"
	}
	s := &Store{
		dir: dir,
		l:   zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Open a badger store in a directory
func Open(dir string, opts ...Option) (*Store, error) {
	s := New(dir, opts...)
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize opens the underlying database
func (s *Store) Initialize() error {
	var err error
	s.init.Do(func() {
		if err = os.MkdirAll(s.dir, 0700); err != nil {
			err = status.ErrBackend.Wrap(err)
			return
		}
		var db *badger.DB
		db, err = badger.Open(badger.DefaultOptions(s.dir).WithLogger(nil))
		if err != nil {
			err = status.ErrBackend.WrapWithLog(s.l, err, zap.String("dir", s.dir))
			return
		}
		s.db = db
	})
	return err
}

// Close the underlying database
func (s *Store) Close() error {
	var err error
	s.close.Do(func() {
		if s.db != nil {
			err = s.db.Close()
			if err == nil {
				s.db = nil
			}
		}
	})
	return err
}

func (s *Store) String() string {
	return "badger@" + s.dir
}

func (s *Store) ready() error {
	if s.db == nil {
		return status.ErrInterface.WrapMessage("badger store at %s is not initialized", s.dir)
	}
	return nil
}

func (s *Store) ListModelIDs(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		pref := headPref[:]
		for it.Seek(pref); it.ValidForPrefix(pref); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(pref):]))
		}
		return nil
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	return ids, nil
}

func (s *Store) ListVersions(ctx context.Context, modelID string) ([]string, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	entries, err := s.versions(modelID)
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Record.VersionID)
	}
	return res, nil
}

// versions of a model, in insertion order
func (s *Store) versions(modelID string) ([]versionEntry, error) {
	var entries []versionEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		pref := versionsPrefix(modelID)
		for it.Seek(pref); it.ValidForPrefix(pref); it.Next() {
			e, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

func (s *Store) LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error) {
	if err := graph.CheckModelID(modelID); err != nil {
		return model.ModelRecord{}, err
	}
	if err := s.ready(); err != nil {
		return model.ModelRecord{}, err
	}
	var e versionEntry
	err := s.db.View(func(txn *badger.Txn) error {
		head, err := txn.Get(headKey(modelID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return status.ErrNotFound.WrapMessage("model %q has no version", modelID)
			}
			return err
		}
		versionID, err := head.ValueCopy(nil)
		if err != nil {
			return err
		}
		e, err = getEntry(txn, modelID, string(versionID))
		if errors.Is(err, status.ErrNotFound) {
			return status.ErrBackend.WrapMessage("model %q: head points to missing version %q", modelID, versionID)
		}
		return err
	})
	if err != nil {
		return model.ModelRecord{}, rewriteError(err)
	}
	return e.Record, nil
}

func (s *Store) GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error) {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return model.ModelRecord{}, err
	}
	if err := s.ready(); err != nil {
		return model.ModelRecord{}, err
	}
	var e versionEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getEntry(txn, modelID, versionID)
		return err
	})
	if err != nil {
		return model.ModelRecord{}, rewriteError(err)
	}
	return e.Record, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error {
	if err := graph.CheckVersion(modelID, versionID); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, modelID, versionID)
		if err != nil {
			return err
		}
		e.Record.Metadata = metadata.Clone()
		return putEntry(txn, e)
	})
	return rewriteError(err)
}

func (s *Store) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	if err := graph.CheckInsert(modelID, versionID, parentVersionID, sourceLocation); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return status.ErrCommunication.Wrap(err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := getEntry(txn, modelID, versionID)
		switch {
		case err == nil:
			return status.ErrConflict.WrapMessage("model %q, version %q", modelID, versionID)
		case !errors.Is(err, status.ErrNotFound):
			return err
		}

		if parentVersionID != "" {
			if _, err := getEntry(txn, modelID, parentVersionID); err != nil {
				if errors.Is(err, status.ErrNotFound) {
					return status.ErrParentNotFound.WrapMessage("model %q, parent version %q", modelID, parentVersionID)
				}
				return err
			}
		}

		seq, err := nextSeq(txn, modelID)
		if err != nil {
			return err
		}
		e := versionEntry{
			Record: model.ModelRecord{
				ModelID:         modelID,
				VersionID:       versionID,
				ParentVersionID: parentVersionID,
				SourceLocation:  sourceLocation,
				Metadata:        metadata.Clone(),
			},
			Seq: seq,
		}
		if err := putEntry(txn, e); err != nil {
			return err
		}
		return txn.Set(headKey(modelID), []byte(versionID))
	})
	if err != nil {
		return rewriteError(err)
	}
	s.l.Debug("version inserted", zap.String("model", modelID), zap.String("version", versionID), zap.String("parent", parentVersionID))
	return nil
}

func getEntry(txn *badger.Txn, modelID, versionID string) (versionEntry, error) {
	item, err := txn.Get(versionKey(modelID, versionID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return versionEntry{}, status.ErrNotFound.WrapMessage("model %q, version %q", modelID, versionID)
		}
		return versionEntry{}, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (versionEntry, error) {
	data, err := item.ValueCopy(nil)
	if err != nil {
		return versionEntry{}, err
	}
	var e versionEntry
	if err := jsoniter.Unmarshal(data, &e); err != nil {
		return versionEntry{}, status.ErrBackend.WrapMessage("json unmarshal failed: %v", err)
	}
	e.Record.Metadata = e.Record.Metadata.Clone()
	return e, nil
}

func putEntry(txn *badger.Txn, e versionEntry) error {
	data, err := jsoniter.Marshal(e)
	if err != nil {
		return status.ErrBackend.WrapMessage("json marshal failed: %v", err)
	}
	return txn.Set(versionKey(e.Record.ModelID, e.Record.VersionID), data)
}

// nextSeq yields the insertion sequence of the next version of a model
func nextSeq(txn *badger.Txn, modelID string) (uint64, error) {
	head, err := txn.Get(headKey(modelID))
	if err == badger.ErrKeyNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	versionID, err := head.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	latest, err := getEntry(txn, modelID, string(versionID))
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return 0, status.ErrBackend.WrapMessage("model %q: head points to missing version %q", modelID, versionID)
		}
		return 0, err
	}
	return latest.Seq + 1, nil
}

// rewriteError maps badger errors to the graph store errors
func rewriteError(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	switch err {
	case badger.ErrConflict, badger.ErrRetry:
		return status.ErrCommunication.Wrap(err)
	case badger.ErrEmptyKey, badger.ErrInvalidKey, badger.ErrTxnTooBig:
		return status.ErrInterface.Wrap(err)
	default:
		return status.ErrBackend.Wrap(err)
	}
}
