package cmd

import (
	"fmt"
	"io"

	"github.com/bimmerbailey/streamchat/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build information, set with -ldflags "-X ...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the build version",
	Long: `Show the version, commit and build date of this binary.

Examples:
  streamchat version
  streamchat version -f json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), output.ParseFormat(viper.GetString("format")))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func writeVersion(w io.Writer, format output.Format) error {
	info := versionInfo{Version: version, Commit: commit, Date: date}
	if format == output.FormatJSON {
		return output.New(w, format).WriteJSON(info)
	}
	_, err := fmt.Fprintf(w, "streamchat %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
	return err
}
