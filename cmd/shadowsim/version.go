package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolkov/critpath/internal/trace"
	"github.com/kolkov/critpath/shadow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := shadow.GetInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shadowsim %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built: %s\n", date)
			fmt.Fprintf(out, "  shadow memory: %s (%d levels, %d-byte segments, %s)\n",
				info.Version, info.MaxLevel, info.SegmentBytes, info.Codec)
			fmt.Fprintf(out, "  trace format: %s\n", trace.Format)
		},
	}
}
