// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

type flagsT struct {
	root struct {
		config   string
		logLevel string
		metrics  bool
	}
	crawl struct {
		schedule    string
		concurrency int
		keepLocal   bool
	}
	release struct {
		name      string
		directory string
		date      string
		archive   string
	}
	model struct {
		id       string
		version  string
		metadata map[string]string
	}
	format string
}

var crawlerFlags = flagsT{}

func addConfigFlag(cmd *cobra.Command) string {
	c := "config"
	cmd.PersistentFlags().StringVar(&crawlerFlags.root.config, c, "", "Path to the configuration file (defaults to modelcrawler.yaml)")
	return c
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&crawlerFlags.root.logLevel, logLevel, "", "The logging level: none, debug, info, warn or error")
	return logLevel
}

func addMetricsFlag(cmd *cobra.Command) string {
	m := "metrics"
	cmd.PersistentFlags().BoolVar(&crawlerFlags.root.metrics, m, false, "Log collected metrics")
	return m
}

func addScheduleFlag(cmd *cobra.Command) string {
	schedule := "schedule"
	cmd.Flags().StringVar(&crawlerFlags.crawl.schedule, schedule, "",
		`Crawl periodically, on a cron schedule (e.g. "0 3 * * *" or "@daily"). Runs once when empty`)
	return schedule
}

func addConcurrencyFlag(cmd *cobra.Command) string {
	concurrency := "concurrency"
	cmd.Flags().IntVar(&crawlerFlags.crawl.concurrency, concurrency, 0, "The number of models processed concurrently")
	return concurrency
}

func addKeepLocalFlag(cmd *cobra.Command) string {
	keep := "keep-local"
	cmd.Flags().BoolVar(&crawlerFlags.crawl.keepLocal, keep, false, "Keep local archives and extracted content after processing")
	return keep
}

func addReleaseNameFlag(cmd *cobra.Command) string {
	name := "release"
	cmd.Flags().StringVar(&crawlerFlags.release.name, name, "", "The name of the release")
	return name
}

func addReleaseDirectoryFlag(cmd *cobra.Command) string {
	directory := "directory"
	cmd.Flags().StringVar(&crawlerFlags.release.directory, directory, "", "The directory of the release in the mirror")
	return directory
}

func addReleaseDateFlag(cmd *cobra.Command) string {
	date := "date"
	cmd.Flags().StringVar(&crawlerFlags.release.date, date, "", "The publication date of the release (e.g. 2020-01-31)")
	return date
}

func addReleaseArchiveFlag(cmd *cobra.Command) string {
	a := "archive"
	cmd.Flags().StringVar(&crawlerFlags.release.archive, a, "", "The name of the release archive, within its directory")
	return a
}

func addModelFlag(cmd *cobra.Command) string {
	m := "model"
	cmd.Flags().StringVar(&crawlerFlags.model.id, m, "", "The model identifier")
	return m
}

func addVersionFlag(cmd *cobra.Command) string {
	version := "version"
	cmd.Flags().StringVar(&crawlerFlags.model.version, version, "", "The version identifier")
	return version
}

func addMetadataFlag(cmd *cobra.Command) string {
	meta := "meta"
	cmd.Flags().StringToStringVar(&crawlerFlags.model.metadata, meta, nil, "Metadata as key=value pairs, replacing the current metadata")
	return meta
}

func addFormatFlag(cmd *cobra.Command, defaultFormat string) string {
	format := "format"
	cmd.Flags().StringVar(&crawlerFlags.format, format, defaultFormat, "Output format: list, yaml or json")
	return format
}

func markRequired(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			wrapFatalln("mark required flag", err)
			return
		}
	}
}
