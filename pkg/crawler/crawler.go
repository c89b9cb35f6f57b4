// Copyright © 2018 One Concern

// Package crawler turns a sequence of published releases into per-model version lineages.
//
// Releases are processed in ascending (date, name) order. For every model in a release,
// the crawler compares the content with the latest version known to the graph store. A new
// or changed model gets a Change in its ChangeLog and a new version, linked to the previous
// latest one. Models known to the store but missing from a release are marked as removed.
//
// All operations touching one model are serialized by a per-model lock. Models within a
// release are processed by a bounded pool of workers, while the next release is fetched
// and unpacked in the background.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/changelog"
	"github.com/oneconcern/modelcrawler/pkg/crawler/status"
	"github.com/oneconcern/modelcrawler/pkg/errors"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	graphstatus "github.com/oneconcern/modelcrawler/pkg/graph/status"
	"github.com/oneconcern/modelcrawler/pkg/metrics"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release"
	releasestatus "github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

var (
	changesRecorded   = metrics.NewCounter("modelcrawler/crawler/changes", "number of model changes recorded", "kind")
	modelFailures     = metrics.NewCounter("modelcrawler/crawler/failures", "number of models failing to process")
	releasesProcessed = metrics.NewCounter("modelcrawler/crawler/releases", "number of releases handled", "result")
	releaseLatency    = metrics.NewLatency("modelcrawler/crawler/release_latency", "time to process the models of a release")
)

// Catalog knows the releases published so far
type Catalog interface {
	Releases(context.Context) ([]model.ReleaseDescriptor, error)
}

// Crawler processes releases into a version graph store
type Crawler struct {
	catalog  Catalog
	fetcher  release.Fetcher
	unpacker release.Unpacker
	store    graph.Store
	content  storage.Store
	locator  storage.Locator
	changes  *changelog.Registry

	locks sync.Map // model id -> *sync.Mutex

	concurrency    int
	namer          VersionNamer
	insertTimeout  time.Duration
	workFs         afero.Fs
	keepLocal      bool
	discardArchive bool
	resume         bool
	l              *zap.Logger
}

// New crawler.
//
// The content store must be able to locate its keys (see storage.Locator).
func New(catalog Catalog, fetcher release.Fetcher, unpacker release.Unpacker,
	store graph.Store, content storage.Store, changes *changelog.Registry, opts ...Option,
) (*Crawler, error) {
	c := &Crawler{
		catalog:       catalog,
		fetcher:       fetcher,
		unpacker:      unpacker,
		store:         store,
		content:       content,
		changes:       changes,
		concurrency:   DefaultConcurrency,
		namer:         KSUIDNamer,
		insertTimeout: DefaultInsertTimeout,
		workFs:        afero.NewOsFs(),
		l:             zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}

	switch {
	case catalog == nil:
		return nil, status.ErrInvalidConfig.WrapMessage("a release catalog is required")
	case fetcher == nil:
		return nil, status.ErrInvalidConfig.WrapMessage("a release fetcher is required")
	case unpacker == nil:
		return nil, status.ErrInvalidConfig.WrapMessage("a release unpacker is required")
	case store == nil:
		return nil, status.ErrInvalidConfig.WrapMessage("a graph store is required")
	case content == nil:
		return nil, status.ErrInvalidConfig.WrapMessage("a content store is required")
	}
	locator, ok := content.(storage.Locator)
	if !ok {
		return nil, status.ErrInvalidConfig.WrapMessage("content store %v cannot locate its keys", content)
	}
	c.locator = locator
	if c.changes == nil {
		c.changes = changelog.NewRegistry()
	}
	return c, nil
}

// ChangeLogs yields the registry of change logs fed by the crawler
func (c *Crawler) ChangeLogs() *changelog.Registry {
	return c.changes
}

// lock the model and return the unlocking function
func (c *Crawler) lock(modelID string) func() {
	v, _ := c.locks.LoadOrStore(modelID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type prepared struct {
	descriptor model.ReleaseDescriptor
	rel        *release.Release
	skip       bool
	err        error
}

// Run processes all releases in the catalog, in order.
//
// Model failures do not stop the run: they are collected in the report (see Report.Err).
// An error is returned when the run stops early, e.g. when a release cannot be fetched or
// unpacked, or when the context is cancelled.
func (c *Crawler) Run(ctx context.Context) (*Report, error) {
	releases, err := c.catalog.Releases(ctx)
	if err != nil {
		return nil, status.ErrCatalog.WrapWithLog(c.l, err)
	}
	model.SortReleases(releases)
	c.l.Info("crawler run starting", zap.Int("releases", len(releases)), zap.Stringer("store", c.store))

	run := c.NewRun()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	// the next release is fetched and unpacked while the current one is processed
	preparedC := make(chan prepared)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(preparedC)
		c.prefetch(ctx, releases, preparedC)
	}()

	for p := range preparedC {
		if p.skip {
			c.l.Info("skipping processed release", zap.Stringer("release", p.descriptor))
			run.report.skipped(p.descriptor.Name)
			metrics.Inc(releasesProcessed, map[string]string{"result": "skipped"})
			continue
		}
		if p.err != nil {
			metrics.Inc(releasesProcessed, map[string]string{"result": "failed"})
			c.l.Error("cannot prepare release", zap.Stringer("release", p.descriptor), zap.Error(p.err))
			return run.Report(), p.err
		}

		failures, err := run.process(ctx, p.rel)
		if err == nil && failures == 0 {
			err = c.markProcessed(ctx, p.rel)
		}
		c.cleanup(p.rel)
		if err != nil {
			return run.Report(), err
		}
	}
	if err := ctx.Err(); err != nil {
		return run.Report(), err
	}

	report := run.Report()
	c.l.Info("crawler run done",
		zap.Int("processed", len(report.Processed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Strings("failed", report.FailedModels()),
	)
	return report, nil
}

func (c *Crawler) prefetch(ctx context.Context, releases []model.ReleaseDescriptor, out chan<- prepared) {
	for _, descriptor := range releases {
		p := prepared{descriptor: descriptor}
		if c.resume {
			p.skip, p.err = c.content.Has(ctx, model.GetArchivePathToProcessedMarker(descriptor))
		}
		if !p.skip && p.err == nil {
			p.rel, p.err = c.prepare(ctx, descriptor)
		}

		select {
		case out <- p:
		case <-ctx.Done():
			if p.rel != nil && p.err == nil {
				c.cleanup(p.rel)
			}
			return
		}
		if p.err != nil {
			return
		}
	}
}

// prepare fetches and unpacks a release.
//
// On failure, the release is left in its last reached state.
func (c *Crawler) prepare(ctx context.Context, descriptor model.ReleaseDescriptor) (*release.Release, error) {
	rel := release.New(descriptor,
		release.WorkFs(c.workFs),
		release.DiscardArchive(c.discardArchive),
		release.Logger(c.l),
	)
	if err := rel.Fetch(ctx, c.fetcher); err != nil {
		return rel, err
	}
	if err := rel.Unpack(ctx, c.unpacker, model.GetWorkPathToContent(descriptor)); err != nil {
		return rel, err
	}
	return rel, nil
}

func (c *Crawler) cleanup(rel *release.Release) {
	if c.keepLocal {
		return
	}
	if err := rel.Cleanup(); err != nil {
		c.l.Warn("cannot clean up local release files", zap.Stringer("release", rel), zap.Error(err))
	}
}

type processedMarker struct {
	Release     string `yaml:"release"`
	Date        string `yaml:"date"`
	Models      int    `yaml:"models"`
	ProcessedAt string `yaml:"processedAt"`
}

func (c *Crawler) markProcessed(ctx context.Context, rel *release.Release) error {
	descriptor := rel.Descriptor()
	marker, err := yaml.Marshal(processedMarker{
		Release:     descriptor.Name,
		Date:        descriptor.Date.UTC().Format(time.RFC3339Nano),
		Models:      len(rel.ModelList()),
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return c.content.Put(ctx, model.GetArchivePathToProcessedMarker(descriptor), bytes.NewReader(marker), storage.OverWrite)
}

// Run is one pass over releases, processed in order.
//
// Processing a release older than one already processed by this run for the same model
// is a programming error and panics.
type Run struct {
	c      *Crawler
	report *Report

	mu       sync.Mutex
	lastSeen map[string]model.ReleaseDescriptor
}

// NewRun starts a new pass over releases
func (c *Crawler) NewRun() *Run {
	return &Run{
		c:        c,
		report:   newReport(),
		lastSeen: make(map[string]model.ReleaseDescriptor),
	}
}

// Report of the run so far
func (r *Run) Report() *Report {
	return r.report
}

// Process the models of an unpacked release.
//
// Model failures are collected in the report. The returned error is a failure to process
// the release as a whole.
func (r *Run) Process(ctx context.Context, rel *release.Release) error {
	_, err := r.process(ctx, rel)
	return err
}

func (r *Run) process(ctx context.Context, rel *release.Release) (int, error) {
	c := r.c
	descriptor := rel.Descriptor()
	if !rel.IsUnpacked() {
		return 0, releasestatus.ErrPreconditionNotMet.WrapMessage("release %s must be unpacked before processing", descriptor.Name)
	}
	t0 := time.Now()

	ids := rel.ModelList()
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}
	known, err := c.store.ListModelIDs(ctx)
	if err != nil {
		return 0, err
	}
	missing := make([]string, 0, len(known))
	for _, id := range known {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	r.admit(descriptor, ids, missing)

	var (
		failures           int32
		wg                 sync.WaitGroup
		concurrencyControl = make(chan struct{}, c.concurrency)
	)
	dispatch := func(modelID string, fn func(context.Context, *release.Release, string) error) {
		if r.report.failed(modelID) {
			return
		}
		select {
		case concurrencyControl <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-concurrencyControl
				wg.Done()
			}()
			err := fn(ctx, rel, modelID)
			if err == nil || ctx.Err() != nil {
				return
			}
			atomic.AddInt32(&failures, 1)
			r.report.fail(modelID, err)
			metrics.Inc(modelFailures)
			c.l.Error("model processing failed",
				zap.String("model", modelID),
				zap.String("release", descriptor.Name),
				zap.String("kind", graph.Kind(err)),
				zap.Error(err),
			)
		}()
	}

	for _, id := range ids {
		dispatch(id, r.updateModel)
	}
	for _, id := range missing {
		dispatch(id, r.removeModel)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return int(failures), err
	}

	r.report.processed(descriptor.Name)
	metrics.Since(t0, releaseLatency)
	metrics.Inc(releasesProcessed, map[string]string{"result": "processed"})
	c.l.Info("release processed",
		zap.Stringer("release", descriptor),
		zap.Int("models", len(ids)),
		zap.Int32("failures", failures),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return int(failures), nil
}

// admit a release for the models it touches
func (r *Run) admit(descriptor model.ReleaseDescriptor, modelIDs ...[]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ids := range modelIDs {
		for _, id := range ids {
			if last, ok := r.lastSeen[id]; ok && descriptor.Before(last) {
				panic(fmt.Sprintf("release %v processed after release %v for model %q", descriptor, last, id))
			}
		}
	}
	for _, ids := range modelIDs {
		for _, id := range ids {
			r.lastSeen[id] = descriptor
		}
	}
}

// updateModel records a new version of a model when it is new or changed in the release
func (r *Run) updateModel(ctx context.Context, rel *release.Release, modelID string) error {
	c := r.c
	unlock := c.lock(modelID)
	defer unlock()

	descriptor := rel.Descriptor()
	relPath, err := rel.ModelPath(modelID)
	if err != nil {
		return err
	}
	file, err := rel.ModelFile(modelID)
	if err != nil {
		return err
	}

	latest, err := c.store.LatestVersion(ctx, modelID)
	isNew := errors.Is(err, graphstatus.ErrNotFound)
	if err != nil && !isNew {
		return err
	}
	if !isNew && covers(latest, descriptor) {
		r.report.unchanged()
		return nil
	}

	sum, err := digest(rel.Fs(), file)
	if err != nil {
		return status.ErrContent.Wrap(err)
	}

	kind := changelog.KindAdded
	var parentVersionID string
	if !isNew {
		parentVersionID = latest.VersionID
		switch {
		case latest.Metadata[model.MetaRemovedIn] != "":
			// reappearing model
		case latest.Metadata[model.MetaPath] != relPath || latest.Metadata[model.MetaDigest] != sum:
			kind = changelog.KindModified
		default:
			r.report.unchanged()
			return nil
		}
	}

	versionID, err := c.namer(modelID, descriptor)
	if err != nil {
		return status.ErrNaming.Wrap(err)
	}
	location, err := c.archive(ctx, rel.Fs(), file, modelID, versionID, relPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	metadata := model.Metadata{
		model.MetaRelease:     descriptor.Name,
		model.MetaReleaseDate: descriptor.Date.UTC().Format(time.RFC3339Nano),
		model.MetaPath:        relPath,
		model.MetaDigest:      sum,
	}
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.insertTimeout)
	defer cancel()
	if err := c.store.InsertVersion(insertCtx, modelID, versionID, parentVersionID, location, metadata); err != nil {
		return err
	}

	return r.record(changelog.NewChange(modelID, kind, descriptor.Date,
		changelog.InRelease(descriptor.Name),
		changelog.AtPath(relPath),
		changelog.WithDigest(sum),
		changelog.ForVersion(versionID),
	))
}

// removeModel marks the latest version of a model missing from the release as removed
func (r *Run) removeModel(ctx context.Context, rel *release.Release, modelID string) error {
	c := r.c
	unlock := c.lock(modelID)
	defer unlock()

	descriptor := rel.Descriptor()
	latest, err := c.store.LatestVersion(ctx, modelID)
	if errors.Is(err, graphstatus.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if latest.Metadata[model.MetaRemovedIn] != "" || covers(latest, descriptor) {
		return nil
	}

	metadata := latest.Metadata.Clone()
	metadata[model.MetaRemovedIn] = descriptor.Name
	metadata[model.MetaRemovedAt] = descriptor.Date.UTC().Format(time.RFC3339Nano)

	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.insertTimeout)
	defer cancel()
	if err := c.store.UpdateMetadata(updateCtx, modelID, latest.VersionID, metadata); err != nil {
		return err
	}

	return r.record(changelog.NewChange(modelID, changelog.KindRemoved, descriptor.Date,
		changelog.InRelease(descriptor.Name),
		changelog.AtPath(latest.Metadata[model.MetaPath]),
		changelog.WithDigest(latest.Metadata[model.MetaDigest]),
		changelog.ForVersion(latest.VersionID),
	))
}

func (r *Run) record(change changelog.Change) error {
	admitted, err := r.c.changes.Get(change.ModelID()).Append(change)
	if err != nil {
		return err
	}
	r.report.change(admitted.Kind())
	metrics.Inc(changesRecorded, map[string]string{"kind": admitted.Kind().String()})
	r.c.l.Info("model change recorded",
		zap.String("model", admitted.ModelID()),
		zap.Stringer("kind", admitted.Kind()),
		zap.String("release", admitted.Release()),
		zap.String("version", admitted.VersionID()),
	)
	return nil
}

// archive the content of a model version and return its location
func (c *Crawler) archive(ctx context.Context, fs afero.Fs, file, modelID, versionID, relPath string) (string, error) {
	key := model.GetArchivePathToModelVersion(modelID, versionID, relPath)
	source, err := fs.Open(file)
	if err != nil {
		return "", status.ErrContent.Wrap(err)
	}
	defer source.Close()

	if err := c.content.Put(ctx, key, source, storage.OverWrite); err != nil {
		return "", status.ErrContent.Wrap(err)
	}
	return c.locator.Location(key), nil
}

// covers tells if the latest version of a model already accounts for a release.
//
// A removed model accounts for all releases up to the one it was removed from.
func covers(latest model.ModelRecord, descriptor model.ReleaseDescriptor) bool {
	recorded := model.ReleaseDescriptor{Name: latest.Metadata[model.MetaRelease]}
	date, ok := latest.Metadata.ReleaseDate()
	if removedIn := latest.Metadata[model.MetaRemovedIn]; removedIn != "" {
		recorded.Name = removedIn
		date, ok = latest.Metadata.RemovalDate()
	}
	if !ok {
		return false
	}
	recorded.Date = date
	return !recorded.Before(descriptor)
}
