package crawler_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/archive"
	"github.com/oneconcern/modelcrawler/pkg/catalog"
	"github.com/oneconcern/modelcrawler/pkg/changelog"
	"github.com/oneconcern/modelcrawler/pkg/crawler"
	"github.com/oneconcern/modelcrawler/pkg/crawler/status"
	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/fetch"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/memory"
	graphstatus "github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release"
	releasestatus "github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeCatalog []model.ReleaseDescriptor

func (f fakeCatalog) Releases(_ context.Context) ([]model.ReleaseDescriptor, error) {
	return append([]model.ReleaseDescriptor(nil), f...), nil
}

type modelFile struct {
	path    string
	content string
}

// published content of a release, by model id
type published map[string]modelFile

func content(p, c string) modelFile {
	return modelFile{path: p, content: c}
}

// fixture fetches and unpacks releases from in-memory descriptions
type fixture struct {
	fs         afero.Fs
	releases   map[string]published
	failUnpack map[string]bool

	mu      sync.Mutex
	fetched []string
}

func newFixture() *fixture {
	return &fixture{
		fs:         afero.NewMemMapFs(),
		releases:   make(map[string]published),
		failUnpack: make(map[string]bool),
	}
}

func (f *fixture) publish(name string, date time.Time, models published) model.ReleaseDescriptor {
	f.releases[name] = models
	return model.ReleaseDescriptor{Name: name, Directory: "mirror", Date: date, Archive: name + ".tar"}
}

func (f *fixture) Fetch(ctx context.Context, d model.ReleaseDescriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, d.Name)
	f.mu.Unlock()
	handle := model.GetWorkPathToArchive(d)
	return handle, afero.WriteFile(f.fs, handle, []byte(d.Name), 0600)
}

func (f *fixture) Unpack(_ context.Context, archivePath, dest string) (model.ModelPathMap, error) {
	name := path.Base(path.Dir(archivePath))
	if f.failUnpack[name] {
		return nil, fmt.Errorf("corrupt archive %s", archivePath)
	}
	models := make(model.ModelPathMap)
	for id, m := range f.releases[name] {
		if err := afero.WriteFile(f.fs, path.Join(dest, m.path), []byte(m.content), 0600); err != nil {
			return nil, err
		}
		models[id] = m.path
	}
	return models, nil
}

func (f *fixture) fetchedReleases() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// namer yielding "v-{release}"
func releaseNamer(_ string, r model.ReleaseDescriptor) (string, error) {
	return "v-" + r.Name, nil
}

type env struct {
	fixture *fixture
	store   graph.Store
	content storage.Store
	changes *changelog.Registry
}

func newEnv() *env {
	return &env{
		fixture: newFixture(),
		store:   memory.New(),
		content: localfs.New(afero.NewMemMapFs()),
		changes: changelog.NewRegistry(),
	}
}

func (e *env) crawler(t testing.TB, releases []model.ReleaseDescriptor, opts ...crawler.Option) *crawler.Crawler {
	opts = append([]crawler.Option{
		crawler.WorkFs(e.fixture.fs),
		crawler.Namer(releaseNamer),
		crawler.Concurrency(4),
	}, opts...)
	c, err := crawler.New(fakeCatalog(releases), e.fixture, e.fixture, e.store, e.content, e.changes, opts...)
	require.NoError(t, err)
	return c
}

func kinds(log *changelog.ChangeLog) []changelog.Kind {
	var result []changelog.Kind
	for c := range log.All() {
		result = append(result, c.Kind())
	}
	return result
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestLineageAcrossReleases(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releaseA := e.fixture.publish("A", day("2020-01-01"), published{"M": content("m/v1.xml", "<sbml>1</sbml>")})
	releaseB := e.fixture.publish("B", day("2020-02-01"), published{"M": content("m/v2.xml", "<sbml>2</sbml>")})

	namer := func(_ string, r model.ReleaseDescriptor) (string, error) {
		return map[string]string{"A": "v1", "B": "v2"}[r.Name], nil
	}
	// the catalog order is not the processing order
	c := e.crawler(t, []model.ReleaseDescriptor{releaseB, releaseA}, crawler.Namer(namer))

	report, err := c.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"A", "B"}, report.Processed)
	assert.Equal(t, 1, report.Count(changelog.KindAdded))
	assert.Equal(t, 1, report.Count(changelog.KindModified))

	latest, err := e.store.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.VersionID)
	assert.Equal(t, "v1", latest.ParentVersionID)
	assert.Equal(t, "B", latest.Metadata[model.MetaRelease])
	assert.Equal(t, "m/v2.xml", latest.Metadata[model.MetaPath])
	assert.Len(t, latest.Metadata[model.MetaDigest], 64)
	assert.Equal(t, "mem:///models/M/v2/v2.xml", latest.SourceLocation)

	first, err := e.store.GetVersion(ctx, "M", "v1")
	require.NoError(t, err)
	assert.True(t, first.IsRoot())

	versions, err := e.store.ListVersions(ctx, "M")
	require.NoError(t, err)
	sort.Strings(versions)
	assert.Equal(t, []string{"v1", "v2"}, versions)

	log, ok := e.changes.Lookup("M")
	require.True(t, ok)
	last, err := log.Latest()
	require.NoError(t, err)
	assert.True(t, last.Key().DetectedAt.Equal(day("2020-02-01")))
	assert.Equal(t, "v2", last.VersionID())
	assert.Equal(t, []changelog.Kind{changelog.KindAdded, changelog.KindModified}, kinds(log))

	archived, err := e.content.Has(ctx, model.GetArchivePathToModelVersion("M", "v2", "m/v2.xml"))
	require.NoError(t, err)
	assert.True(t, archived)

	// local files are cleaned up
	exists, err := afero.DirExists(e.fixture.fs, model.GetWorkPathToContent(releaseB))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnchangedModel(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "same"), "N": content("n.xml", "n1")}),
		e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "same"), "N": content("n.xml", "n2")}),
	}
	report, err := e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 2, report.Count(changelog.KindAdded))
	assert.Equal(t, 1, report.Count(changelog.KindModified))

	versions, err := e.store.ListVersions(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, []string{"v-A"}, versions)

	latest, err := e.store.LatestVersion(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, "v-B", latest.VersionID)
	assert.Equal(t, "v-A", latest.ParentVersionID)
}

func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1"), "N": content("n.xml", "1")}),
		e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "2")}),
		e.fixture.publish("C", day("2020-03-01"), published{"M": content("m.xml", "2"), "N": content("n.xml", "1")}),
	}
	_, err := e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)

	before := map[string][]string{}
	for _, id := range []string{"M", "N"} {
		before[id], err = e.store.ListVersions(ctx, id)
		require.NoError(t, err)
	}

	// a fresh process over the same stores
	e.changes = changelog.NewRegistry()
	report, err := e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
	assert.Equal(t, []string{"A", "B", "C"}, report.Processed)
	assert.Empty(t, e.changes.Models())

	for _, id := range []string{"M", "N"} {
		after, err := e.store.ListVersions(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before[id], after, id)
	}
}

func TestRerunWithSubSecondDates(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	base := day("2020-01-01")
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", base.Add(500*time.Millisecond), published{"M": content("m.xml", "1")}),
		e.fixture.publish("B", base.Add(700*time.Millisecond), published{"M": content("m.xml", "2")}),
	}
	_, err := e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)

	before, err := e.store.ListVersions(ctx, "M")
	require.NoError(t, err)
	require.Equal(t, []string{"v-A", "v-B"}, before)

	e.changes = changelog.NewRegistry()
	report, err := e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Changes)

	after, err := e.store.ListVersions(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	latest, err := e.store.LatestVersion(ctx, "M")
	require.NoError(t, err)
	recorded, ok := latest.Metadata.ReleaseDate()
	require.True(t, ok)
	assert.True(t, releases[1].Date.Equal(recorded))
}

func TestResumeSkipsProcessedReleases(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1")}),
		e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "2")}),
	}
	_, err := e.crawler(t, releases[:1], crawler.Resume(true)).Run(ctx)
	require.NoError(t, err)

	marked, err := e.content.Has(ctx, model.GetArchivePathToProcessedMarker(releases[0]))
	require.NoError(t, err)
	assert.True(t, marked)

	report, err := e.crawler(t, releases, crawler.Resume(true)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, report.Skipped)
	assert.Equal(t, []string{"B"}, report.Processed)
	assert.Equal(t, []string{"A", "B"}, e.fixture.fetchedReleases())
}

func TestRemovalAndReappearance(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1"), "N": content("n.xml", "1")}),
		e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "1")}),
		e.fixture.publish("C", day("2020-03-01"), published{"M": content("m.xml", "1")}),
		e.fixture.publish("D", day("2020-04-01"), published{"M": content("m.xml", "1"), "N": content("n.xml", "1")}),
	}

	report, err := e.crawler(t, releases[:3]).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(changelog.KindRemoved))

	removed, err := e.store.LatestVersion(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, "v-A", removed.VersionID)
	assert.Equal(t, "B", removed.Metadata[model.MetaRemovedIn])
	assert.Equal(t, "A", removed.Metadata[model.MetaRelease])

	report, err = e.crawler(t, releases).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(changelog.KindAdded))
	assert.Zero(t, report.Count(changelog.KindRemoved))

	back, err := e.store.LatestVersion(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, "v-D", back.VersionID)
	assert.Equal(t, "v-A", back.ParentVersionID)
	assert.Empty(t, back.Metadata[model.MetaRemovedIn])

	log := e.changes.Get("N")
	assert.Equal(t, []changelog.Kind{changelog.KindAdded, changelog.KindRemoved, changelog.KindAdded}, kinds(log))
}

// failingStore fails inserts for some models
type failingStore struct {
	graph.Store
	fail error

	mu      sync.Mutex
	badSeen int
}

func (f *failingStore) InsertVersion(ctx context.Context, modelID, versionID, parentVersionID, sourceLocation string, metadata model.Metadata) error {
	if modelID == "bad" {
		f.mu.Lock()
		f.badSeen++
		f.mu.Unlock()
		return f.fail
	}
	return f.Store.InsertVersion(ctx, modelID, versionID, parentVersionID, sourceLocation, metadata)
}

func TestModelFailureIsolation(t *testing.T) {
	for _, tts := range []struct {
		name string
		err  error
	}{
		{name: "conflict", err: graphstatus.ErrConflict.WrapMessage("exists")},
		{name: "parent not found", err: graphstatus.ErrParentNotFound.WrapMessage("orphan")},
		{name: "backend", err: graphstatus.ErrBackend.WrapMessage("inconsistent")},
		{name: "interface", err: graphstatus.ErrInterface.WrapMessage("bad request")},
	} {
		tt := tts
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e := newEnv()
			failing := &failingStore{Store: e.store, fail: tt.err}
			e.store = failing
			releases := []model.ReleaseDescriptor{
				e.fixture.publish("A", day("2020-01-01"), published{"bad": content("bad.xml", "1"), "good": content("good.xml", "1")}),
				e.fixture.publish("B", day("2020-02-01"), published{"bad": content("bad.xml", "2"), "good": content("good.xml", "2")}),
			}

			report, err := e.crawler(t, releases).Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"A", "B"}, report.Processed)
			assert.Equal(t, []string{"bad"}, report.FailedModels())

			rerr := report.Err()
			require.Error(t, rerr)
			assert.True(t, errors.Is(rerr, status.ErrModel))
			assert.True(t, errors.Is(rerr, tt.err))

			// the failed model is not retried by later releases
			assert.Equal(t, 1, failing.badSeen)
			_, ok := e.changes.Lookup("bad")
			assert.False(t, ok)

			latest, err := e.store.LatestVersion(ctx, "good")
			require.NoError(t, err)
			assert.Equal(t, "v-B", latest.VersionID)

			// no processed marker for releases with failures
			marked, err := e.content.Has(ctx, model.GetArchivePathToProcessedMarker(releases[0]))
			require.NoError(t, err)
			assert.False(t, marked)
		})
	}
}

func TestExtractionFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1")}),
		e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "2")}),
		e.fixture.publish("C", day("2020-03-01"), published{"M": content("m.xml", "3")}),
	}
	e.fixture.failUnpack["B"] = true

	report, err := e.crawler(t, releases, crawler.KeepLocal(true)).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, releasestatus.ErrExtraction))
	assert.Equal(t, []string{"A"}, report.Processed)
	assert.NotContains(t, e.fixture.fetchedReleases(), "C")

	latest, err := e.store.LatestVersion(ctx, "M")
	require.NoError(t, err)
	assert.Equal(t, "v-A", latest.VersionID)

	// the archive of B is kept for a retry, its content is not
	fetched, err := afero.Exists(e.fixture.fs, model.GetWorkPathToArchive(releases[1]))
	require.NoError(t, err)
	assert.True(t, fetched)
	extracted, err := afero.DirExists(e.fixture.fs, model.GetWorkPathToContent(releases[1]))
	require.NoError(t, err)
	assert.False(t, extracted)
}

func unpacked(t testing.TB, e *env, d model.ReleaseDescriptor) *release.Release {
	rel := release.New(d, release.WorkFs(e.fixture.fs))
	require.NoError(t, rel.Fetch(context.Background(), e.fixture))
	require.NoError(t, rel.Unpack(context.Background(), e.fixture, model.GetWorkPathToContent(d)))
	return rel
}

func TestOutOfOrderProcessingPanics(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	releaseA := e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1")})
	releaseB := e.fixture.publish("B", day("2020-02-01"), published{"M": content("m.xml", "2")})
	c := e.crawler(t, nil)

	run := c.NewRun()
	require.NoError(t, run.Process(ctx, unpacked(t, e, releaseB)))
	assert.Panics(t, func() {
		_ = run.Process(ctx, unpacked(t, e, releaseA))
	})

	// another run has its own history
	assert.NotPanics(t, func() {
		_ = c.NewRun().Process(ctx, unpacked(t, e, releaseA))
	})
}

func TestProcessRequiresUnpackedRelease(t *testing.T) {
	e := newEnv()
	d := e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1")})
	rel := release.New(d, release.WorkFs(e.fixture.fs))

	err := e.crawler(t, nil).NewRun().Process(context.Background(), rel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, releasestatus.ErrPreconditionNotMet))
}

func TestCancelledRun(t *testing.T) {
	e := newEnv()
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), published{"M": content("m.xml", "1")}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.crawler(t, releases).Run(ctx)
	require.Error(t, err)

	ids, err := e.store.ListModelIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConcurrentModels(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	const n = 50
	first, second := published{}, published{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("BIOMD%04d", i)
		first[id] = content(id+".xml", "1")
		second[id] = content(id+".xml", fmt.Sprint(i%2))
	}
	releases := []model.ReleaseDescriptor{
		e.fixture.publish("A", day("2020-01-01"), first),
		e.fixture.publish("B", day("2020-02-01"), second),
	}

	report, err := e.crawler(t, releases, crawler.Concurrency(3)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, report.Count(changelog.KindAdded))
	assert.Equal(t, n/2, report.Count(changelog.KindModified))
	assert.Equal(t, n/2, report.Unchanged)
	assert.Len(t, e.changes.Models(), n)
}

func TestNew(t *testing.T) {
	e := newEnv()
	cat := fakeCatalog(nil)

	_, err := crawler.New(nil, e.fixture, e.fixture, e.store, e.content, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))
	_, err = crawler.New(cat, nil, e.fixture, e.store, e.content, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))
	_, err = crawler.New(cat, e.fixture, nil, e.store, e.content, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))
	_, err = crawler.New(cat, e.fixture, e.fixture, nil, e.content, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))
	_, err = crawler.New(cat, e.fixture, e.fixture, e.store, nil, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))

	// the content store must locate its keys
	_, err = crawler.New(cat, e.fixture, e.fixture, e.store, struct{ storage.Store }{e.content}, nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))
	_, err = crawler.New(cat, e.fixture, e.fixture, e.store, storage.Instrument(struct{ storage.Store }{e.content}, nil), nil)
	assert.True(t, errors.Is(err, status.ErrInvalidConfig))

	c, err := crawler.New(cat, e.fixture, e.fixture, e.store, storage.Instrument(e.content, nil), nil)
	require.NoError(t, err)
	assert.NotNil(t, c.ChangeLogs())
}

func TestKSUIDNamer(t *testing.T) {
	var ids []string
	for _, d := range []string{"2005-06-01", "2016-01-01", "2020-01-01", "2020-02-01"} {
		id, err := crawler.KSUIDNamer("M", model.ReleaseDescriptor{Name: d, Date: day(d)})
		require.NoError(t, err)
		require.NoError(t, model.ValidateID("version", id))
		ids = append(ids, id)
	}
	assert.True(t, sort.StringsAreSorted(ids), "%v", ids)
	assert.Regexp(t, `^20050601-`, ids[0])

	other, err := crawler.KSUIDNamer("M", model.ReleaseDescriptor{Name: "x", Date: day("2020-01-01")})
	require.NoError(t, err)
	assert.NotEqual(t, ids[2], other)
}

func buildTarGz(t testing.TB, files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0600, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	mirror := localfs.New(afero.NewMemMapFs())
	work := afero.NewMemMapFs()
	cat := catalog.New(mirror)

	publish := func(name, date string, files map[string]string) {
		d := model.ReleaseDescriptor{Name: name, Directory: name, Date: day(date), Archive: "models.tar.gz"}
		require.NoError(t, mirror.Put(ctx, model.GetArchivePathToRelease(d), bytes.NewReader(buildTarGz(t, files)), storage.OverWrite))
		require.NoError(t, cat.Add(ctx, d))
	}
	publish("R1", "2020-01-01", map[string]string{
		"curated/BIOMD0000000001.xml": "<sbml>a</sbml>",
		"curated/BIOMD0000000002.xml": "<sbml>b</sbml>",
		"README.txt":                  "not a model",
	})
	publish("R2", "2020-02-01", map[string]string{
		"curated/BIOMD0000000001.xml":     "<sbml>a</sbml>",
		"non_curated/BIOMD0000000002.xml": "<sbml>b</sbml>",
		"curated/BIOMD0000000003.xml":     "<sbml>c</sbml>",
	})

	fetcher, err := fetch.New(mirror, work)
	require.NoError(t, err)
	store := graph.Instrument(graph.WithRetry(memory.New()))
	contentStore := storage.Instrument(localfs.New(afero.NewMemMapFs()), nil)

	c, err := crawler.New(cat, fetcher, archive.New(work), store, contentStore, nil,
		crawler.WorkFs(work), crawler.DiscardArchive(true), crawler.Resume(true))
	require.NoError(t, err)

	report, err := c.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"R1", "R2"}, report.Processed)
	assert.Equal(t, 3, report.Count(changelog.KindAdded))
	assert.Equal(t, 1, report.Count(changelog.KindModified))
	assert.Equal(t, 1, report.Unchanged)

	ids, err := store.ListModelIDs(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"BIOMD0000000001", "BIOMD0000000002", "BIOMD0000000003"}, ids)

	moved, err := store.LatestVersion(ctx, "BIOMD0000000002")
	require.NoError(t, err)
	assert.Equal(t, "non_curated/BIOMD0000000002.xml", moved.Metadata[model.MetaPath])
	assert.False(t, moved.IsRoot())
	assert.Regexp(t, `^20200201-`, moved.VersionID)

	// local files are removed once processed
	for _, name := range []string{"R1", "R2"} {
		d := model.ReleaseDescriptor{Name: name, Archive: "models.tar.gz"}
		exists, err := afero.Exists(work, model.GetWorkPathToArchive(d))
		require.NoError(t, err)
		assert.False(t, exists, name)
		exists, err = afero.DirExists(work, model.GetWorkPathToContent(d))
		require.NoError(t, err)
		assert.False(t, exists, name)
	}

	again, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2"}, again.Skipped)
	assert.Empty(t, again.Processed)
}
