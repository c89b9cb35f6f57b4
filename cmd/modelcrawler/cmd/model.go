// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/oneconcern/modelcrawler/pkg/graph"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Commands to query model versions",
	Long:  "Commands to query the version graph store for models and their versions",
}

// withGraph runs a query on the graph store
func withGraph(query func(context.Context, graph.Store) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s, err := openGraph(ctx, config, logger())
		if err != nil {
			wrapFatalln("open graph store", err)
			return
		}
		defer closeStore(s)
		if err := query(ctx, s); err != nil {
			wrapFatalln(cmd.Short, err)
			return
		}
	}
}

var modelListCmd = &cobra.Command{
	Use:     "list",
	Short:   "list models",
	Long:    "List the identifiers of all known models",
	Aliases: []string{"ls"},
	Run: withGraph(func(ctx context.Context, s graph.Store) error {
		ids, err := s.ListModelIDs(ctx)
		if err != nil {
			return err
		}
		sort.Strings(ids)
		printOutput(formatters(stringList), ids)
		return nil
	}),
}

var modelVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "list versions",
	Long:  "List the versions of a model, in order of insertion. The list is empty for an unknown model.",
	Run: withGraph(func(ctx context.Context, s graph.Store) error {
		versions, err := s.ListVersions(ctx, crawlerFlags.model.id)
		if err != nil {
			return err
		}
		printOutput(formatters(stringList), versions)
		return nil
	}),
}

var modelLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "get latest version",
	Long:  "Get the most recent version of a model",
	Run: withGraph(func(ctx context.Context, s graph.Store) error {
		record, err := s.LatestVersion(ctx, crawlerFlags.model.id)
		if err != nil {
			return err
		}
		printOutput(formatters(recordList), record)
		return nil
	}),
}

var modelGetCmd = &cobra.Command{
	Use:   "get",
	Short: "get version",
	Long:  "Get a version of a model",
	Run: withGraph(func(ctx context.Context, s graph.Store) error {
		record, err := s.GetVersion(ctx, crawlerFlags.model.id, crawlerFlags.model.version)
		if err != nil {
			return err
		}
		printOutput(formatters(recordList), record)
		return nil
	}),
}

var modelMetaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Commands to manage the metadata of versions",
}

var modelMetaSetCmd = &cobra.Command{
	Use:     "set",
	Short:   "set metadata",
	Long:    "Replace the metadata of a version. Parentage and content location are unchanged.",
	Example: `% modelcrawler model meta set --model BIOMD0000000001 --version 20200101-1aXyz --meta curated=true,release=R31`,
	Run: withGraph(func(ctx context.Context, s graph.Store) error {
		metadata := model.Metadata(crawlerFlags.model.metadata).Clone()
		if err := s.UpdateMetadata(ctx, crawlerFlags.model.id, crawlerFlags.model.version, metadata); err != nil {
			return err
		}
		infoLogger.Printf("metadata of %s@%s updated", crawlerFlags.model.id, crawlerFlags.model.version)
		return nil
	}),
}

var stringList = FormatterFunc(func(w io.Writer, data interface{}) error {
	for _, s := range data.([]string) {
		fmt.Fprintln(w, s)
	}
	return nil
})

var recordList = FormatterFunc(func(w io.Writer, data interface{}) error {
	r := data.(model.ModelRecord)
	parent := r.ParentVersionID
	if r.IsRoot() {
		parent = color.HiBlackString("(root)")
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ModelID, color.CyanString(r.VersionID), parent, r.SourceLocation)
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "\t%s=%s\n", color.HiBlackString(k), r.Metadata[k])
	}
	return nil
})

func init() {
	addFormatFlag(modelListCmd, "list")
	modelCmd.AddCommand(modelListCmd)

	for _, c := range []*cobra.Command{modelVersionsCmd, modelLatestCmd} {
		addFormatFlag(c, "list")
		markRequired(c, addModelFlag(c))
		modelCmd.AddCommand(c)
	}

	addFormatFlag(modelGetCmd, "list")
	markRequired(modelGetCmd, addModelFlag(modelGetCmd), addVersionFlag(modelGetCmd))
	modelCmd.AddCommand(modelGetCmd)

	markRequired(modelMetaSetCmd,
		addModelFlag(modelMetaSetCmd),
		addVersionFlag(modelMetaSetCmd),
		addMetadataFlag(modelMetaSetCmd),
	)
	modelMetaCmd.AddCommand(modelMetaSetCmd)
	modelCmd.AddCommand(modelMetaCmd)

	rootCmd.AddCommand(modelCmd)
}
