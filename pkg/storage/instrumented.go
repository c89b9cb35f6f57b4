// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/metrics"
	"go.uber.org/zap"
)

var (
	storageCalls   = metrics.NewCounter("modelcrawler/storage/calls", "number of calls to a storage backend", "store", "operation", "result")
	storageLatency = metrics.NewLatency("modelcrawler/storage/latency", "latency of calls to a storage backend", "store", "operation")
)

// Instrument a store with metrics and debug logging
func Instrument(store Store, l *zap.Logger) Store {
	if l == nil {
		l = zap.NewNop()
	}
	i := &instrumentedStore{
		store: store,
		l:     l.With(zap.String("store", store.String())),
	}
	if loc, ok := store.(Locator); ok {
		return &instrumentedLocator{instrumentedStore: i, locator: loc}
	}
	return i
}

// instrumentedLocator is an instrumented store which locates its keys
type instrumentedLocator struct {
	*instrumentedStore
	locator Locator
}

func (i *instrumentedLocator) Location(key string) string {
	return i.locator.Location(key)
}

type instrumentedStore struct {
	store Store
	l     *zap.Logger
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	name := i.store.String()
	metrics.Inc(storageCalls, map[string]string{"store": name, "operation": op, "result": result})
	metrics.Since(start, storageLatency, map[string]string{"store": name, "operation": op})
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (bool, error) {
	t0 := time.Now()
	has, err := i.store.Has(ctx, key)
	i.observe("has", t0, err)
	return has, err
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	t0 := time.Now()
	i.l.Debug("storage get", zap.String("key", key))
	rdr, err := i.store.Get(ctx, key)
	i.observe("get", t0, err)
	return rdr, err
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	t0 := time.Now()
	i.l.Debug("storage put", zap.String("key", key))
	err := i.store.Put(ctx, key, rdr, exclusive)
	i.observe("put", t0, err)
	return err
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) error {
	t0 := time.Now()
	i.l.Debug("storage delete", zap.String("key", key))
	err := i.store.Delete(ctx, key)
	i.observe("delete", t0, err)
	return err
}

func (i *instrumentedStore) Keys(ctx context.Context) ([]string, error) {
	t0 := time.Now()
	keys, err := i.store.Keys(ctx)
	i.observe("keys", t0, err)
	return keys, err
}

func (i *instrumentedStore) Clear(ctx context.Context) error {
	t0 := time.Now()
	i.l.Info("storage clear")
	err := i.store.Clear(ctx)
	i.observe("clear", t0, err)
	return err
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
