// Copyright © 2018 One Concern

package storage_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInstrumentAndCopy(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := context.Background()

	src := storage.Instrument(localfs.New(afero.NewMemMapFs()), zap.New(core))
	dst := localfs.New(afero.NewMemMapFs())

	require.NoError(t, src.Put(ctx, "releases/r1.tar.gz", bytes.NewBufferString("archive"), storage.NoOverWrite))
	require.NoError(t, storage.Copy(ctx, src, "releases/r1.tar.gz", dst, "archives/R1/r1.tar.gz", storage.OverWrite))

	rdr, err := dst.Get(ctx, "archives/R1/r1.tar.gz")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(b))

	assert.NotZero(t, logs.FilterMessage("storage put").Len())
	assert.NotZero(t, logs.FilterMessage("storage get").Len())
	assert.Equal(t, "localfs", src.String())
	assert.Equal(t, "mem:///k", src.(storage.Locator).Location("k"))

	err = storage.Copy(ctx, src, "missing", dst, "x", storage.OverWrite)
	require.Error(t, err)
}

// blindStore hides the Locator side of a store
type blindStore struct {
	storage.Store
}

func TestInstrumentKeepsLocator(t *testing.T) {
	fs := localfs.New(afero.NewMemMapFs())

	_, ok := storage.Instrument(fs, nil).(storage.Locator)
	assert.True(t, ok)

	_, ok = storage.Instrument(blindStore{Store: fs}, nil).(storage.Locator)
	assert.False(t, ok)
}
