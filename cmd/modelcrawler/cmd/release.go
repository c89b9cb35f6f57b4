// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/oneconcern/modelcrawler/pkg/catalog"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Commands to manage the release catalog",
	Long: `Commands to manage the catalog of published releases.

The catalog is kept in the mirror directory, as releases.yaml.`,
}

var releaseListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List releases",
	Long:    "List the releases in the catalog, in order of publication",
	Aliases: []string{"ls"},
	Run: func(cmd *cobra.Command, args []string) {
		cat, _, err := openCatalog(config, logger())
		if err != nil {
			wrapFatalln("open catalog", err)
			return
		}
		releases, err := cat.Releases(context.Background())
		if err != nil {
			wrapFatalln("list releases", err)
			return
		}
		printOutput(formatters(releaseList), releases)
	},
}

var releaseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a release",
	Long:  "Declare a new release in the catalog. Its archive is expected in the mirror, under the release directory.",
	Example: `% modelcrawler release add --release R31 --date 2017-06-26 --directory R31 --archive models.tar.bz2`,
	Run: func(cmd *cobra.Command, args []string) {
		date, err := catalog.ParseDate(crawlerFlags.release.date)
		if err != nil {
			wrapFatalln("release date", err)
			return
		}
		cat, _, err := openCatalog(config, logger())
		if err != nil {
			wrapFatalln("open catalog", err)
			return
		}
		release := model.ReleaseDescriptor{
			Name:      crawlerFlags.release.name,
			Directory: crawlerFlags.release.directory,
			Date:      date,
			Archive:   crawlerFlags.release.archive,
		}
		if err = cat.Add(context.Background(), release); err != nil {
			wrapFatalln("add release", err)
			return
		}
		infoLogger.Printf("release %v added", release)
	},
}

var releaseList = FormatterFunc(func(w io.Writer, data interface{}) error {
	for _, r := range data.([]model.ReleaseDescriptor) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Date.Format("2006-01-02"), color.HiBlackString(model.GetArchivePathToRelease(r)))
	}
	return nil
})

func init() {
	addFormatFlag(releaseListCmd, "list")
	releaseCmd.AddCommand(releaseListCmd)

	markRequired(releaseAddCmd,
		addReleaseNameFlag(releaseAddCmd),
		addReleaseDateFlag(releaseAddCmd),
		addReleaseArchiveFlag(releaseAddCmd),
	)
	addReleaseDirectoryFlag(releaseAddCmd)
	releaseCmd.AddCommand(releaseAddCmd)

	rootCmd.AddCommand(releaseCmd)
}
