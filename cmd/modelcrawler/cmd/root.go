// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/modelcrawler/pkg/dlogger"
	"github.com/oneconcern/modelcrawler/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modelcrawler",
	Short: "Modelcrawler tracks the version history of published biological models",
	Long: `Modelcrawler ingests the dated releases of a model repository.

Every release is fetched and unpacked. Models which are new or changed since the previous
release get a new version, linked to their previous version in a version graph store.
Models which disappear from a release are marked as removed.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if crawlerFlags.root.metrics {
			metrics.Init(metrics.WithExporter(metrics.LogExporter(logger())))
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if crawlerFlags.root.metrics {
			metrics.Flush()
		}
	},
}

var config *CLIConfig

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addConfigFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addMetricsFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults(viper.GetViper())

	switch {
	case crawlerFlags.root.config != "":
		viper.SetConfigFile(crawlerFlags.root.config)
	case os.Getenv("MODELCRAWLER_CONFIG") != "":
		viper.SetConfigFile(os.Getenv("MODELCRAWLER_CONFIG"))
	default:
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.modelcrawler")
		viper.AddConfigPath("/etc/modelcrawler")
		viper.SetConfigName("modelcrawler")
	}

	viper.SetEnvPrefix("modelcrawler")
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	config, err = newConfig(viper.GetViper())
	if err != nil {
		wrapFatalln("invalid configuration", err)
		return
	}
	config.setCrawlerParams(&crawlerFlags)
}

func logger() *zap.Logger {
	l, err := dlogger.GetLogger(crawlerFlags.root.logLevel)
	if err != nil {
		wrapFatalln("failed to set log level", err)
		return zap.NewNop()
	}
	return l
}
