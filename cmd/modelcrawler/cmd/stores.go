// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oneconcern/modelcrawler/pkg/archive"
	"github.com/oneconcern/modelcrawler/pkg/catalog"
	"github.com/oneconcern/modelcrawler/pkg/changelog"
	"github.com/oneconcern/modelcrawler/pkg/crawler"
	"github.com/oneconcern/modelcrawler/pkg/fetch"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/graph/bdgr"
	"github.com/oneconcern/modelcrawler/pkg/graph/memory"
	"github.com/oneconcern/modelcrawler/pkg/graph/postgres"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/oneconcern/modelcrawler/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// dirFs roots a file system at a directory, created if needed
func dirFs(dir string) (afero.Fs, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(abs, 0700); err != nil {
		return nil, err
	}
	return afero.NewBasePathFs(osFs, abs), nil
}

func dirStore(dir string, l *zap.Logger) (storage.Store, error) {
	fs, err := dirFs(dir)
	if err != nil {
		return nil, err
	}
	return storage.Instrument(localfs.New(fs), l), nil
}

// openGraph opens the configured version graph store, with retries and metrics
func openGraph(ctx context.Context, c *CLIConfig, l *zap.Logger) (graph.Store, error) {
	var (
		s   graph.Store
		err error
	)
	switch c.Graph.Backend {
	case backendMemory:
		s = memory.New()
	case backendBadger:
		s, err = bdgr.Open(c.Graph.Dir, bdgr.Logger(l))
	case backendPostgres:
		s, err = postgres.Open(ctx, c.Graph.DSN, postgres.Logger(l))
	default:
		err = fmt.Errorf("unsupported graph backend %q", c.Graph.Backend)
	}
	if err != nil {
		return nil, err
	}
	l.Debug("graph store opened", zap.Stringer("store", s))

	return graph.Instrument(graph.WithRetry(s,
		graph.CallTimeout(c.Graph.CallTimeout),
		graph.MaxRetries(c.Graph.MaxRetries),
		graph.RetryLogger(l),
	)), nil
}

func openCatalog(c *CLIConfig, l *zap.Logger) (*catalog.Store, storage.Store, error) {
	mirror, err := dirStore(c.Mirror, l)
	if err != nil {
		return nil, nil, fmt.Errorf("mirror: %w", err)
	}
	return catalog.New(mirror), mirror, nil
}

// env holds everything a crawl needs
type env struct {
	catalog *catalog.Store
	mirror  storage.Store
	content storage.Store
	work    afero.Fs
	graph   graph.Store

	closeOnce sync.Once
	closeErr  error
}

func openEnv(ctx context.Context, c *CLIConfig, l *zap.Logger) (*env, error) {
	cat, mirror, err := openCatalog(c, l)
	if err != nil {
		return nil, err
	}
	content, err := dirStore(c.Content, l)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	work, err := dirFs(c.Work)
	if err != nil {
		return nil, fmt.Errorf("work: %w", err)
	}
	g, err := openGraph(ctx, c, l)
	if err != nil {
		return nil, err
	}
	return &env{
		catalog: cat,
		mirror:  mirror,
		content: content,
		work:    work,
		graph:   g,
	}, nil
}

// Close the stores of the environment. Closing more than once is a no-op.
func (e *env) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.graph.Close()
	})
	return e.closeErr
}

func (e *env) crawler(c *CLIConfig, flags flagsT, l *zap.Logger) (*crawler.Crawler, error) {
	fetcher, err := fetch.New(e.mirror, e.work, fetch.Logger(l))
	if err != nil {
		return nil, err
	}
	unpacker := archive.New(e.work,
		archive.MaxFileSize(c.Archive.maxFileSize),
		archive.MaxTotalSize(c.Archive.maxTotalSize),
		archive.Extensions(c.Archive.Extensions...),
		archive.Logger(l),
	)
	return crawler.New(e.catalog, fetcher, unpacker, e.graph, e.content, changelog.NewRegistry(),
		crawler.WorkFs(e.work),
		crawler.Concurrency(flags.crawl.concurrency),
		crawler.InsertTimeout(c.Crawl.InsertTimeout),
		crawler.KeepLocal(c.Crawl.KeepLocal),
		crawler.DiscardArchive(c.Crawl.DiscardArchive),
		crawler.Resume(c.Crawl.Resume),
		crawler.Logger(l),
	)
}

func closeStore(s io.Closer) {
	if err := s.Close(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "closing graph store: %v\n", err)
	}
}
