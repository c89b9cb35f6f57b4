// Copyright © 2018 One Concern

package localfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHas(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	has, err := bs.Has(context.Background(), "sixteentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "seventeentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "fifteentons")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGet(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	rdr, err := bs.Get(context.Background(), "sixteentons")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "this is the text", string(b))

	rdr, err = bs.Get(context.Background(), "seventeentons")
	require.NoError(t, err)
	b, err = io.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "this is the text for another thing", string(b))

	_, err = bs.Get(context.Background(), "fifteentons")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotExists))
}

func TestKeys(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	keys, err := bs.Keys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, []string{"seventeentons", "sixteentons"}, keys)
}

func TestDelete(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	require.NoError(t, bs.Delete(context.Background(), "seventeentons"))
	require.NoError(t, bs.Delete(context.Background(), "seventeentons"), "deleting twice is not an error")
	k, _ := bs.Keys(context.Background())
	assert.Len(t, k, 1)
}

func TestClear(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	require.NoError(t, bs.Clear(context.Background()))
	k, _ := bs.Keys(context.Background())
	require.Empty(t, k)
}

func TestPut(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	content := bytes.NewBufferString("here we go once again")
	err := bs.Put(context.Background(), model.GetArchivePathToModelVersion("M", "v1", "m/v1.xml"), content, storage.NoOverWrite)
	require.NoError(t, err)

	rdr, err := bs.Get(context.Background(), "models/M/v1/v1.xml")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())

	assert.Equal(t, "here we go once again", string(b))

	k, _ := bs.Keys(context.Background())
	assert.Len(t, k, 3)

	err = bs.Put(context.Background(), "models/M/v1/v1.xml", bytes.NewBufferString("again"), storage.NoOverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrExists))

	require.NoError(t, bs.Put(context.Background(), "sixteentons", bytes.NewBufferString("short"), storage.OverWrite))
	rdr, err = bs.Get(context.Background(), "sixteentons")
	require.NoError(t, err)
	b, err = io.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "short", string(b), "overwrite truncates previous content")
}

func TestLocation(t *testing.T) {
	mem := New(afero.NewMemMapFs())
	loc := mem.(storage.Locator).Location("models/M/v1/v1.xml")
	assert.Equal(t, "mem:///models/M/v1/v1.xml", loc)
	require.NoError(t, model.ValidateLocation(loc))

	dir := t.TempDir()
	disk := New(afero.NewBasePathFs(afero.NewOsFs(), dir))
	loc = disk.(storage.Locator).Location("models/M/v1/v1.xml")
	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "models", "M", "v1", "v1.xml")), u.Path)
	assert.Contains(t, disk.String(), "localfs@")
}

func TestAtomicPut(t *testing.T) {
	fs := afero.NewMemMapFs()
	bs, err := NewAtomic(fs)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := model.GetArchivePathToModelVersion("M", fmt.Sprintf("v%d", i), "m.xml")
			assert.NoError(t, bs.Put(ctx, key, bytes.NewBufferString("<sbml/>"), storage.OverWrite))
		}(i)
	}
	wg.Wait()

	keys, err := bs.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 8, "staging area is not exposed")
	assert.Equal(t, "models/M/v0/m.xml", keys[0])

	err = bs.Put(ctx, ".put-stage/x", bytes.NewBufferString("x"), storage.OverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidResource))

	err = bs.Put(ctx, "models/M/v1/m.xml", bytes.NewBufferString("x"), storage.NoOverWrite)
	assert.True(t, errors.Is(err, status.ErrExists))

	assert.Equal(t, "mem:///a", bs.(storage.Locator).Location("a"))
}

func setupStore(t testing.TB) (storage.Store, func()) {
	t.Helper()

	fs := afero.NewMemMapFs()
	f, err := fs.Create("sixteentons")
	require.NoError(t, err)
	_, err = f.WriteString("this is the text")
	require.NoError(t, err)
	f.Close()

	ff, err := fs.Create("seventeentons")
	require.NoError(t, err)
	_, err = ff.WriteString("this is the text for another thing")
	require.NoError(t, err)
	ff.Close()

	return New(fs), func() {}
}
