package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=v1.2.3"
var Version string

type buildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion string `json:"goVersion,omitempty" yaml:"goVersion,omitempty"`
}

// readBuildInfo completes the release version with what the go toolchain stamped in the binary
func readBuildInfo() buildInfo {
	info := buildInfo{Version: Version}
	if info.Version == "" {
		info.Version = "dev"
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

var versionList = FormatterFunc(func(w io.Writer, data interface{}) error {
	info := data.(buildInfo)
	commit := info.Commit
	if info.Modified {
		commit += color.YellowString(" (modified)")
	}
	_, err := fmt.Fprintf(w, "modelcrawler %s %s %s\n", info.Version, commit, color.HiBlackString(info.GoVersion))
	return err
})

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the version of modelcrawler",
	Long:  "Prints the version of modelcrawler, with the commit and go version it was built from",
	Run: func(cmd *cobra.Command, args []string) {
		printOutput(formatters(versionList), readBuildInfo())
	},
}

func init() {
	addFormatFlag(versionCmd, "list")
	rootCmd.AddCommand(versionCmd)
}
