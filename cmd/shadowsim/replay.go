package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kolkov/critpath/internal/shadow/engine"
	"github.com/kolkov/critpath/internal/shadow/metrics"
	"github.com/kolkov/critpath/internal/trace"
)

type replayFlags struct {
	cacheLines  int
	cacheDepth  int
	compress    bool
	activeSet   int
	gcPeriod    int
	maxRegions  int
	metricsAddr string
	hold        bool
	strict      bool
}

// replayReport is the --json output of replay.
type replayReport struct {
	Trace    trace.Result `json:"trace"`
	Stats    engine.Stats `json:"stats"`
	HitRate  float64      `json:"hit_rate"`
	Ratio    float64      `json:"compression_ratio"`
	Duration string       `json:"duration"`
}

func newReplayCmd(g *globalFlags) *cobra.Command {
	f := &replayFlags{}
	cmd := &cobra.Command{
		Use:   "replay <trace.jsonl>",
		Short: "Replay a trace through shadow memory",
		Long: `The replay command feeds every record of a trace through a fresh shadow
memory and prints its counters. Flags left unset fall back to the SHADOWMEM_*
environment variables. Use "-" to read the trace from stdin.

Example:
  shadowsim replay loops.jsonl
  shadowsim replay loops.jsonl --cache-lines 0 --gc-period 64
  shadowsim replay loops.jsonl --compress --active-set 16 --json
  shadowsim replay loops.jsonl --metrics-addr :9108 --hold`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, g, f, args[0])
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.cacheLines, "cache-lines", 0, "Tag vector cache lines, a power of two; 0 bypasses the cache")
	fl.IntVar(&f.cacheDepth, "cache-depth", 0, "Initial levels per cache line")
	fl.BoolVar(&f.compress, "compress", false, "Compress idle level tables")
	fl.IntVar(&f.activeSet, "active-set", 0, "Expanded level tables kept when compressing")
	fl.IntVar(&f.gcPeriod, "gc-period", 0, "Live TimeTables between garbage collections; 0 disables")
	fl.IntVar(&f.maxRegions, "max-regions", 0, "Cap on TimeTable pool regions; 0 for none")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the replay")
	fl.BoolVar(&f.hold, "hold", false, "Keep serving metrics after the replay until interrupted")
	fl.BoolVar(&f.strict, "strict", false, "Fail if any get differs from its expected tag vector")
	return cmd
}

// engineOptions maps the flags the user set onto engine options.
func (f *replayFlags) engineOptions(cmd *cobra.Command) []engine.Option {
	fl := cmd.Flags()
	var opts []engine.Option
	if fl.Changed("cache-lines") {
		opts = append(opts, engine.OptCacheLines(f.cacheLines))
	}
	if fl.Changed("cache-depth") {
		opts = append(opts, engine.OptCacheDepth(f.cacheDepth))
	}
	if fl.Changed("compress") {
		opts = append(opts, engine.OptCompression(f.compress))
	}
	if fl.Changed("active-set") {
		opts = append(opts, engine.OptActiveSetSize(f.activeSet))
	}
	if fl.Changed("gc-period") {
		opts = append(opts, engine.OptGCPeriod(f.gcPeriod))
	}
	if fl.Changed("max-regions") {
		opts = append(opts, engine.OptMaxRegions(f.maxRegions))
	}
	return opts
}

func openTrace(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	return f, nil
}

func runReplay(cmd *cobra.Command, g *globalFlags, f *replayFlags, path string) error {
	log, err := g.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openTrace(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()
	tr, err := trace.NewReader(in)
	if err != nil {
		return err
	}

	e, err := engine.New(append(f.engineOptions(cmd), engine.OptLogger(log))...)
	if err != nil {
		return err
	}
	defer e.Close()

	// The engine is single-threaded; scrapes read the last published snapshot.
	var snap atomic.Pointer[engine.Stats]
	publish := func() {
		s := e.Stats()
		snap.Store(&s)
	}
	publish()

	var srv *http.Server
	if f.metricsAddr != "" {
		srv, err = serveMetrics(f.metricsAddr, log, func() engine.Stats { return *snap.Load() })
		if err != nil {
			return err
		}
		defer shutdown(srv, log)
	}

	start := time.Now()
	res, err := trace.Replay(ctx, e, tr, func(trace.Result) { publish() })
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	publish()
	log.Info("replay finished", "records", res.Records, "elapsed", elapsed)

	stats := e.Stats()
	out := cmd.OutOrStdout()
	if g.jsonOut {
		err = printJSON(out, replayReport{
			Trace:    res,
			Stats:    stats,
			HitRate:  stats.HitRate(),
			Ratio:    stats.CompressionRatio(),
			Duration: elapsed.String(),
		})
	} else {
		printReplay(out, res, stats, elapsed)
	}
	if err != nil {
		return err
	}

	if srv != nil && f.hold {
		fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s, interrupt to exit\n", f.metricsAddr)
		<-ctx.Done()
	}
	if f.strict && res.Mismatches > 0 {
		return fmt.Errorf("%d of %d checked gets mismatched", res.Mismatches, res.Checked)
	}
	return nil
}

func printReplay(w io.Writer, res trace.Result, s engine.Stats, elapsed time.Duration) {
	name := res.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "trace:        %s, %d records in %s\n", name, res.Records, elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "records:      %d get, %d set, %d bump, %d gc, depth %d\n",
		res.Gets, res.Sets, res.Bumps, res.GCs, res.MaxDepth)
	fmt.Fprintf(w, "checked:      %d gets, %d mismatches\n", res.Checked, res.Mismatches)
	fmt.Fprint(w, s.String())
}

func serveMetrics(addr string, log *slog.Logger, snapshot func() engine.Stats) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(snapshot),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "err", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func shutdown(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown", "err", err)
	}
}
