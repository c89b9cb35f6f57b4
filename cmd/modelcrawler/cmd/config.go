package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/oneconcern/modelcrawler/pkg/archive"
	"github.com/oneconcern/modelcrawler/pkg/crawler"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/spf13/viper"
)

// graph store backends
const (
	backendMemory   = "memory"
	backendBadger   = "badger"
	backendPostgres = "postgres"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// bug in viper? Need to keep names of fields the same as the serialized names..
	Mirror   string        `json:"mirror" yaml:"mirror"`     // directory holding the release catalog and archives
	Work     string        `json:"work" yaml:"work"`         // directory where releases are fetched and unpacked
	Content  string        `json:"content" yaml:"content"`   // directory where the content of model versions is archived
	LogLevel string        `json:"loglevel" yaml:"loglevel"` // log level
	Graph    GraphConfig   `json:"graph" yaml:"graph"`
	Crawl    CrawlConfig   `json:"crawl" yaml:"crawl"`
	Archive  ArchiveConfig `json:"archive" yaml:"archive"`
}

// GraphConfig selects and tunes the version graph store
type GraphConfig struct {
	Backend     string        `json:"backend" yaml:"backend"` // memory, badger or postgres
	Dir         string        `json:"dir" yaml:"dir"`         // badger directory
	DSN         string        `json:"dsn" yaml:"dsn"`         // postgres connection string
	CallTimeout time.Duration `json:"calltimeout" yaml:"calltimeout"`
	MaxRetries  uint64        `json:"maxretries" yaml:"maxretries"`
}

// CrawlConfig tunes the crawler
type CrawlConfig struct {
	Concurrency    int           `json:"concurrency" yaml:"concurrency"`
	InsertTimeout  time.Duration `json:"inserttimeout" yaml:"inserttimeout"`
	KeepLocal      bool          `json:"keeplocal" yaml:"keeplocal"`
	DiscardArchive bool          `json:"discardarchive" yaml:"discardarchive"`
	Resume         bool          `json:"resume" yaml:"resume"`
	Schedule       string        `json:"schedule" yaml:"schedule"` // cron expression
}

// ArchiveConfig limits the extraction of release archives
type ArchiveConfig struct {
	MaxFileSize  string   `json:"maxfilesize" yaml:"maxfilesize"` // e.g. 512MiB
	MaxTotalSize string   `json:"maxtotalsize" yaml:"maxtotalsize"`
	Extensions   []string `json:"extensions" yaml:"extensions"` // extensions of model files

	maxFileSize  int64
	maxTotalSize int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mirror", "mirror")
	v.SetDefault("work", ".modelcrawler/work")
	v.SetDefault("content", ".modelcrawler/content")
	v.SetDefault("loglevel", "info")

	v.SetDefault("graph.backend", backendBadger)
	v.SetDefault("graph.dir", ".modelcrawler/graph")
	v.SetDefault("graph.dsn", "")
	v.SetDefault("graph.calltimeout", graph.DefaultCallTimeout)
	v.SetDefault("graph.maxretries", graph.DefaultMaxRetries)

	v.SetDefault("crawl.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawl.inserttimeout", crawler.DefaultInsertTimeout)
	v.SetDefault("crawl.keeplocal", false)
	v.SetDefault("crawl.discardarchive", true)
	v.SetDefault("crawl.resume", true)
	v.SetDefault("crawl.schedule", "")

	v.SetDefault("archive.maxfilesize", "512MiB")
	v.SetDefault("archive.maxtotalsize", "16GiB")
	v.SetDefault("archive.extensions", archive.DefaultExtensions)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func newConfig(v *viper.Viper) (*CLIConfig, error) {
	var config CLIConfig
	err := v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	if err = config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *CLIConfig) validate() error {
	switch c.Graph.Backend {
	case backendMemory:
		// nothing survives the process: processed releases must be crawled again
		c.Crawl.Resume = false
	case backendBadger:
		if c.Graph.Dir == "" {
			return fmt.Errorf("graph.dir is required by the %s backend", backendBadger)
		}
	case backendPostgres:
		if c.Graph.DSN == "" {
			return fmt.Errorf("graph.dsn is required by the %s backend", backendPostgres)
		}
	default:
		return fmt.Errorf("unsupported graph backend %q, expected one of %s, %s or %s",
			c.Graph.Backend, backendMemory, backendBadger, backendPostgres)
	}

	var err error
	if c.Archive.maxFileSize, err = archive.ParseSize(c.Archive.MaxFileSize); err != nil {
		return fmt.Errorf("archive.maxfilesize: %w", err)
	}
	if c.Archive.maxTotalSize, err = archive.ParseSize(c.Archive.MaxTotalSize); err != nil {
		return fmt.Errorf("archive.maxtotalsize: %w", err)
	}
	return nil
}

func (c *CLIConfig) setCrawlerParams(flags *flagsT) {
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
	if flags.crawl.schedule == "" {
		flags.crawl.schedule = c.Crawl.Schedule
	}
	if flags.crawl.concurrency == 0 {
		flags.crawl.concurrency = c.Crawl.Concurrency
	}
	if flags.crawl.keepLocal {
		c.Crawl.KeepLocal = true
	}
}
