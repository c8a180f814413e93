package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel string
	jsonOut  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "shadowsim",
		Short: "Replay memory access traces through profiler shadow memory",
		Long: `shadowsim replays JSON-lines memory access traces through the shadow
memory of the critical path profiler and reports cache, compression and
garbage collection behaviour. It can also synthesize nested-loop traces whose
expected tag vectors are checked during replay.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Output in JSON format")

	cmd.AddCommand(newReplayCmd(g), newSynthCmd(), newVersionCmd())
	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// logger builds the text logger for the engine at the requested level.
func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// printJSON writes v as one JSON document followed by a newline.
func printJSON(w io.Writer, v any) error {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
