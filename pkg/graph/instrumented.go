// Copyright © 2018 One Concern

package graph

import (
	"context"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/metrics"
	"github.com/oneconcern/modelcrawler/pkg/model"
)

var (
	storeCalls   = metrics.NewCounter("modelcrawler/graph/calls", "number of calls to the graph store", "store", "operation", "result")
	storeLatency = metrics.NewLatency("modelcrawler/graph/latency", "latency of calls to the graph store", "store", "operation")
)

// Instrument a store with call counts and latencies, tagged by operation and result kind
func Instrument(s Store) Store {
	return &instrumentedStore{Store: s}
}

type instrumentedStore struct {
	Store
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	name := i.Store.String()
	metrics.Inc(storeCalls, map[string]string{"store": name, "operation": op, "result": Kind(err)})
	metrics.Since(start, storeLatency, map[string]string{"store": name, "operation": op})
}

func (i *instrumentedStore) ListModelIDs(ctx context.Context) ([]string, error) {
	t0 := time.Now()
	res, err := i.Store.ListModelIDs(ctx)
	i.observe("ListModelIDs", t0, err)
	return res, err
}

func (i *instrumentedStore) ListVersions(ctx context.Context, modelID string) ([]string, error) {
	t0 := time.Now()
	res, err := i.Store.ListVersions(ctx, modelID)
	i.observe("ListVersions", t0, err)
	return res, err
}

func (i *instrumentedStore) LatestVersion(ctx context.Context, modelID string) (model.ModelRecord, error) {
	t0 := time.Now()
	res, err := i.Store.LatestVersion(ctx, modelID)
	i.observe("LatestVersion", t0, err)
	return res, err
}

func (i *instrumentedStore) GetVersion(ctx context.Context, modelID, versionID string) (model.ModelRecord, error) {
	t0 := time.Now()
	res, err := i.Store.GetVersion(ctx, modelID, versionID)
	i.observe("GetVersion", t0, err)
	return res, err
}

func (i *instrumentedStore) UpdateMetadata(ctx context.Context, modelID, versionID string, metadata model.Metadata) error {
	t0 := time.Now()
	err := i.Store.UpdateMetadata(ctx, modelID, versionID, metadata)
	i.observe("UpdateMetadata", t0, err)
	return err
}

func (i *instrumentedStore) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	t0 := time.Now()
	err := i.Store.InsertVersion(ctx, modelID, versionID, parentVersionID, sourceLocation, metadata)
	i.observe("InsertVersion", t0, err)
	return err
}
