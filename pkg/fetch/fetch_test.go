// Copyright © 2018 One Concern

package fetch

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release"
	"github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	ctx := context.Background()
	mirror := localfs.New(afero.NewMemMapFs())
	work := afero.NewMemMapFs()

	d := model.ReleaseDescriptor{
		Name:      "R1",
		Directory: "releases/2020-01",
		Date:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Archive:   "models.tar.gz",
	}
	require.NoError(t, mirror.Put(ctx, "releases/2020-01/models.tar.gz", bytes.NewBufferString("archive"), storage.NoOverWrite))

	f, err := New(mirror, work)
	require.NoError(t, err)

	r := release.New(d, release.WorkFs(work))
	require.NoError(t, r.Fetch(ctx, f))

	h, ok := r.ArchiveHandle()
	require.True(t, ok)
	assert.Equal(t, "archives/R1/models.tar.gz", h)

	b, err := afero.ReadFile(work, h)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(b))
}

func TestFetchMissing(t *testing.T) {
	f, err := New(localfs.New(afero.NewMemMapFs()), afero.NewMemMapFs())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), model.ReleaseDescriptor{Name: "R1", Archive: "nowhere.zip"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrFetch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, model.ReleaseDescriptor{Name: "R1", Archive: "nowhere.zip"})
	assert.True(t, errors.Is(err, context.Canceled))
}
