package engine

import (
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/kolkov/critpath/internal/shadow/version"
)

type config struct {
	logger        *slog.Logger
	activeSetSize int
	gcPeriod      int
	compression   bool
	cacheLines    int
	cacheDepth    int
	maxRegions    int
}

// Option configures an Engine. Build options with the Opt functions.
type Option = func(*config)

func resolveConfig(opts ...func(*config)) *config {
	cfg := &config{}
	cfg.activeSetSize = 4096
	if env := os.Getenv("SHADOWMEM_ACTIVESET"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			cfg.activeSetSize = val
		}
	}
	cfg.gcPeriod = 1024
	if env := os.Getenv("SHADOWMEM_GCPERIOD"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			cfg.gcPeriod = val
		}
	}
	if env := os.Getenv("SHADOWMEM_COMPRESS"); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			cfg.compression = val
		}
	}
	cfg.cacheLines = 1 << 14
	if env := os.Getenv("SHADOWMEM_CACHELINES"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			cfg.cacheLines = val
		}
	}
	cfg.cacheDepth = 8
	if env := os.Getenv("SHADOWMEM_CACHEDEPTH"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			cfg.cacheDepth = val
		}
	}
	if env := os.Getenv("SHADOWMEM_MAXREGIONS"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			cfg.maxRegions = val
		}
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.activeSetSize < 1 {
		cfg.activeSetSize = 1
	}
	if cfg.gcPeriod < 0 {
		cfg.gcPeriod = 0
	}
	if cfg.cacheLines < 0 {
		cfg.cacheLines = 0
	}
	if cfg.cacheDepth < 1 {
		cfg.cacheDepth = 1
	}
	if cfg.cacheDepth > version.MaxLevel {
		cfg.cacheDepth = version.MaxLevel
	}
	if cfg.maxRegions < 0 {
		cfg.maxRegions = 0
	}
	return cfg
}

// OptList returns a slice with the opts given; useful if you want to possibly
// append more options to the list before using it with New(list...).
func OptList(opts ...func(*config)) []func(*config) {
	return opts
}

// OptLogger sets the structured logger. Defaults to discarding all output.
func OptLogger(l *slog.Logger) func(*config) {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// OptActiveSetSize bounds how many LevelTables are kept decompressed when
// compression is enabled. Defaults to env SHADOWMEM_ACTIVESET or 4096.
func OptActiveSetSize(n int) func(*config) {
	return func(cfg *config) {
		cfg.activeSetSize = n
	}
}

// OptGCPeriod sets how many newly allocated TimeTables trigger the next
// garbage collection sweep; 0 disables collection. Defaults to env
// SHADOWMEM_GCPERIOD or 1024.
func OptGCPeriod(n int) func(*config) {
	return func(cfg *config) {
		cfg.gcPeriod = n
	}
}

// OptCompression enables compression of LevelTables evicted from the active
// set. Defaults to env SHADOWMEM_COMPRESS or false.
func OptCompression(on bool) func(*config) {
	return func(cfg *config) {
		cfg.compression = on
	}
}

// OptCacheLines sets the number of tag-vector cache lines; it must be a power
// of two, and 0 sends every access straight to the level tables. Defaults to
// env SHADOWMEM_CACHELINES or 16384.
func OptCacheLines(n int) func(*config) {
	return func(cfg *config) {
		cfg.cacheLines = n
	}
}

// OptCacheDepth sets the initial number of levels held per cache line; the
// cache grows on demand. Defaults to env SHADOWMEM_CACHEDEPTH or 8.
func OptCacheDepth(n int) func(*config) {
	return func(cfg *config) {
		cfg.cacheDepth = n
	}
}

// OptMaxRegions bounds the number of backing memory regions the TimeTable pool
// may map; exceeding it is fatal. Defaults to env SHADOWMEM_MAXREGIONS or 0
// (unbounded).
func OptMaxRegions(n int) func(*config) {
	return func(cfg *config) {
		cfg.maxRegions = n
	}
}
