// Copyright © 2018 One Concern

// Package graphtest provides a test suite checking the behavior common to all graph.Store backends
package graphtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store for a test. The suite closes it.
type Factory func(*testing.T) graph.Store

// Location builds a source location for tests
func Location(modelID, versionID string) string {
	return fmt.Sprintf("mem:///models/%s/%s/%s.xml", modelID, versionID, modelID)
}

// Run the backend suite against stores built by the factory
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, graph.Store)
	}{
		{name: "empty store", fn: testEmpty},
		{name: "round trip", fn: testRoundTrip},
		{name: "convenience forms", fn: testConvenienceForms},
		{name: "parent not found", fn: testParentNotFound},
		{name: "parent of another model", fn: testParentOfAnotherModel},
		{name: "conflict", fn: testConflict},
		{name: "update metadata", fn: testUpdateMetadata},
		{name: "invalid requests", fn: testInvalidRequests},
		{name: "branching lineage", fn: testBranching},
		{name: "concurrent inserts", fn: testConcurrentInserts},
	}

	for _, tts := range tests {
		tt := tts
		t.Run(tt.name, func(t *testing.T) {
			s := factory(t)
			defer func() {
				require.NoError(t, s.Close())
			}()
			tt.fn(t, s)
		})
	}
}

func testEmpty(t *testing.T, s graph.Store) {
	ctx := context.Background()

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	versions, err := s.ListVersions(ctx, "M")
	require.NoError(t, err, "listing an unknown model is not an error")
	assert.Empty(t, versions)

	_, err = s.LatestVersion(ctx, "M")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound), "got %v", err)

	_, err = s.GetVersion(ctx, "M", "v1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound), "got %v", err)

	err = s.UpdateMetadata(ctx, "M", "v1", model.Metadata{"k": "v"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound), "got %v", err)
}

func testRoundTrip(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertVersion(ctx, "M", "v1", "", Location("M", "v1"), model.Metadata{model.MetaRelease: "A"}))
	require.NoError(t, s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), model.Metadata{model.MetaRelease: "B"}))

	versions, err := s.ListVersions(ctx, "M")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, versions)

	latest, err := s.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.VersionID)
	assert.Equal(t, "v1", latest.ParentVersionID)
	assert.Equal(t, Location("M", "v2"), latest.SourceLocation)
	assert.Equal(t, "B", latest.Metadata[model.MetaRelease])

	root, err := s.GetVersion(ctx, "M", "v1")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Equal(t, "M", root.ModelID)
	assert.Equal(t, "A", root.Metadata[model.MetaRelease])

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M"}, ids)
}

func testConvenienceForms(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, graph.Insert(ctx, s, "M", "v1", "", Location("M", "v1")))
	r, err := s.GetVersion(ctx, "M", "v1")
	require.NoError(t, err)
	assert.Empty(t, r.Metadata)

	rec := model.ModelRecord{
		ModelID:         "M",
		VersionID:       "v2",
		ParentVersionID: "ignored",
		SourceLocation:  Location("M", "v2"),
		Metadata:        model.Metadata{"k": "v"},
	}
	require.NoError(t, graph.InsertRecord(ctx, s, rec, "v1"))

	r, err = s.GetVersion(ctx, "M", "v2")
	require.NoError(t, err)
	assert.Equal(t, "v1", r.ParentVersionID)
	assert.Equal(t, model.Metadata{"k": "v"}, r.Metadata)

	// same contract as InsertVersion
	err = graph.Insert(ctx, s, "M", "v2", "v1", Location("M", "v2"))
	assert.True(t, errors.Is(err, status.ErrConflict), "got %v", err)
}

func testParentNotFound(t *testing.T, s graph.Store) {
	ctx := context.Background()

	err := s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrParentNotFound), "got %v", err)

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "a failed insert leaves the store unchanged")

	versions, err := s.ListVersions(ctx, "M")
	require.NoError(t, err)
	assert.Empty(t, versions)

	require.NoError(t, s.InsertVersion(ctx, "M", "v1", "", Location("M", "v1"), nil))
	err = s.InsertVersion(ctx, "M", "v3", "v2", Location("M", "v3"), nil)
	assert.True(t, errors.Is(err, status.ErrParentNotFound), "got %v", err)

	versions, err = s.ListVersions(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, versions)
	latest, err := s.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v1", latest.VersionID)
}

func testParentOfAnotherModel(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertVersion(ctx, "N", "v1", "", Location("N", "v1"), nil))
	err := s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrParentNotFound), "got %v", err)

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"N"}, ids)
}

func testConflict(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertVersion(ctx, "M", "v1", "", Location("M", "v1"), model.Metadata{"k": "first"}))
	require.NoError(t, s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), nil))

	err := s.InsertVersion(ctx, "M", "v1", "", Location("M", "other"), model.Metadata{"k": "second"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrConflict), "got %v", err)

	r, err := s.GetVersion(ctx, "M", "v1")
	require.NoError(t, err)
	assert.Equal(t, "first", r.Metadata["k"])
	assert.Equal(t, Location("M", "v1"), r.SourceLocation)

	latest, err := s.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.VersionID, "a rejected insert does not move the latest version")

	// the same version id is fine for another model
	require.NoError(t, s.InsertVersion(ctx, "N", "v1", "", Location("N", "v1"), nil))
}

func testUpdateMetadata(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertVersion(ctx, "M", "v1", "", Location("M", "v1"), model.Metadata{"a": "1", "b": "2"}))
	require.NoError(t, s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), nil))

	require.NoError(t, s.UpdateMetadata(ctx, "M", "v1", model.Metadata{"c": "3"}))

	r, err := s.GetVersion(ctx, "M", "v1")
	require.NoError(t, err)
	assert.Equal(t, model.Metadata{"c": "3"}, r.Metadata, "metadata is replaced, not merged")
	assert.Equal(t, Location("M", "v1"), r.SourceLocation)
	assert.True(t, r.IsRoot())

	latest, err := s.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.VersionID, "updating metadata does not change the latest version")

	err = s.UpdateMetadata(ctx, "M", "v9", model.Metadata{"c": "3"})
	assert.True(t, errors.Is(err, status.ErrNotFound), "got %v", err)
}

func testInvalidRequests(t *testing.T, s graph.Store) {
	ctx := context.Background()

	tests := []struct {
		name                                  string
		modelID, versionID, parent, location string
	}{
		{name: "empty model", versionID: "v1", location: Location("M", "v1")},
		{name: "empty version", modelID: "M", location: Location("M", "v1")},
		{name: "invalid model", modelID: "../M", versionID: "v1", location: Location("M", "v1")},
		{name: "own parent", modelID: "M", versionID: "v1", parent: "v1", location: Location("M", "v1")},
		{name: "relative location", modelID: "M", versionID: "v1", location: "models/M/v1"},
		{name: "empty location", modelID: "M", versionID: "v1"},
	}
	for _, tt := range tests {
		err := s.InsertVersion(ctx, tt.modelID, tt.versionID, tt.parent, tt.location, nil)
		require.Errorf(t, err, tt.name)
		assert.Truef(t, errors.Is(err, status.ErrInterface), "%s: got %v", tt.name, err)
	}

	_, err := s.GetVersion(ctx, "", "v1")
	assert.True(t, errors.Is(err, status.ErrInterface), "got %v", err)

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testBranching(t *testing.T, s graph.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertVersion(ctx, "M", "v1", "", Location("M", "v1"), nil))
	require.NoError(t, s.InsertVersion(ctx, "M", "v2", "v1", Location("M", "v2"), nil))
	require.NoError(t, s.InsertVersion(ctx, "M", "v3", "v1", Location("M", "v3"), nil))

	latest, err := s.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v3", latest.VersionID, "the latest version is the most recently inserted one")
	assert.Equal(t, "v1", latest.ParentVersionID)
}

func testConcurrentInserts(t *testing.T, s graph.Store) {
	ctx := context.Background()
	const models = 8

	var wg sync.WaitGroup
	for i := 0; i < models; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("M%d", i)
			assert.NoError(t, s.InsertVersion(ctx, id, "v1", "", Location(id, "v1"), nil))
			assert.NoError(t, s.InsertVersion(ctx, id, "v2", "v1", Location(id, "v2"), nil))
		}(i)
	}
	wg.Wait()

	ids, err := s.ListModelIDs(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	require.Len(t, ids, models)

	for _, id := range ids {
		latest, err := s.LatestVersion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "v2", latest.VersionID)
	}
}
