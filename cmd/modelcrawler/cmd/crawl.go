// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/oneconcern/modelcrawler/pkg/crawler"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Process published releases into the version graph",
	Long: `Process all releases in the catalog, in order of publication.

New and changed models get a new version in the graph store. Models missing from a release
are marked as removed. Releases already processed are skipped when resuming is enabled.

With --schedule, the crawl is repeated on a cron schedule until interrupted. A crawl due
while the previous one is still running is skipped.
`,
	Example: `% modelcrawler crawl
% modelcrawler crawl --schedule "@daily" --concurrency 16`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l := logger()
		e, err := openEnv(ctx, config, l)
		if err != nil {
			wrapFatalln("open stores", err)
			return
		}
		defer closeStore(e)

		c, err := e.crawler(config, crawlerFlags, l)
		if err != nil {
			wrapFatalln("create crawler", err)
			return
		}

		if crawlerFlags.crawl.schedule == "" {
			if err := crawlOnce(ctx, c); err != nil {
				closeStore(e)
				wrapFatalWithCodef(2, "crawl failed: %v", err)
			}
			return
		}

		if err := crawlOnSchedule(ctx, c, crawlerFlags.crawl.schedule, l); err != nil {
			wrapFatalln("schedule crawl", err)
			return
		}
	},
}

func crawlOnce(ctx context.Context, c *crawler.Crawler) error {
	report, err := c.Run(ctx)
	if report != nil {
		printOutput(formatters(reportList), report)
	}
	if err != nil {
		return err
	}
	return report.Err()
}

func crawlOnSchedule(ctx context.Context, c *crawler.Crawler, schedule string, l *zap.Logger) error {
	cl := cronLogger{l: l.Sugar()}
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := scheduler.AddFunc(schedule, func() {
		if err := crawlOnce(ctx, c); err != nil {
			l.Error("scheduled crawl failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	l.Info("crawl scheduled", zap.String("schedule", schedule))
	scheduler.Start()
	<-ctx.Done()
	l.Info("stopping scheduled crawls")
	<-scheduler.Stop().Done()
	return nil
}

// cronLogger adapts zap to the logger expected by cron
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

var reportList = FormatterFunc(func(w io.Writer, data interface{}) error {
	report := data.(*crawler.Report)
	for _, name := range report.Skipped {
		fmt.Fprintf(w, "%s\t%s\n", name, color.HiBlackString("skipped"))
	}
	for _, name := range report.Processed {
		fmt.Fprintf(w, "%s\t%s\n", name, color.GreenString("processed"))
	}
	kinds := make([]string, 0, len(report.Changes))
	for kind := range report.Changes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "%s\t%d\n", kind, report.Changes[kind])
	}
	fmt.Fprintf(w, "unchanged\t%d\n", report.Unchanged)
	for _, id := range report.FailedModels() {
		fmt.Fprintf(w, "%s\t%s\n", id, color.RedString("%v", report.Failed[id]))
	}
	return nil
})

func init() {
	addScheduleFlag(crawlCmd)
	addConcurrencyFlag(crawlCmd)
	addKeepLocalFlag(crawlCmd)
	addFormatFlag(crawlCmd, "list")
	rootCmd.AddCommand(crawlCmd)
}
