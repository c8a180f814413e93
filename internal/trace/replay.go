package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/kolkov/critpath/internal/shadow/engine"
	"github.com/kolkov/critpath/internal/shadow/version"
)

// Result summarizes one replay.
type Result struct {
	Name    string `json:"name,omitempty"`
	Records int    `json:"records"`
	Gets    int    `json:"gets"`
	Sets    int    `json:"sets"`
	Bumps   int    `json:"bumps"`
	GCs     int    `json:"gcs"`
	// Checked counts gets carrying an expect list; Mismatches those whose
	// tag vector differed from it.
	Checked    int `json:"checked"`
	Mismatches int `json:"mismatches"`
	// MaxDepth is the deepest version vector seen.
	MaxDepth int `json:"max_depth"`
}

// cancelCheck is how many records pass between context checks.
const cancelCheck = 1024

// Replay feeds every record of tr into e, starting from an all-zero version
// vector. Mismatches against expect lists are counted, not returned; the
// first malformed record stops the replay with an error wrapping ErrRecord.
//
// A non-nil progress is called on the replay goroutine every 1024 records,
// the only point at which e may be inspected while the replay runs.
func Replay(ctx context.Context, e *engine.Engine, tr *Reader, progress func(Result)) (Result, error) {
	res := Result{Name: tr.Header().Name}
	vv := version.New()
	var rec Record
	for {
		if res.Records%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if progress != nil && res.Records > 0 {
				progress(res)
			}
		}
		err := tr.Next(&rec)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if err := apply(e, vv, &rec, &res); err != nil {
			return res, fmt.Errorf("line %d: %w", tr.Line(), err)
		}
		res.Records++
		res.MaxDepth = max(res.MaxDepth, vv.Len())
	}
}

func width(bytes int) engine.Width {
	if bytes == 4 {
		return engine.Width32
	}
	return engine.Width64
}

func apply(e *engine.Engine, vv *version.Vector, rec *Record, res *Result) error {
	switch rec.Op {
	case OpBump, OpEnter:
		if rec.Op == OpBump {
			vv.Bump(rec.Level)
		} else {
			vv.Enter(rec.Level)
		}
		res.Bumps++
		return nil
	case OpGC:
		e.RunGarbageCollector(vv.Snapshot(), rec.Level)
		res.GCs++
		return nil
	}

	size := rec.Size
	if size == 0 {
		size = vv.Len()
	}
	if size > vv.Len() {
		return fmt.Errorf("%w: size %d exceeds %d active levels", ErrRecord, size, vv.Len())
	}
	if rec.Op == OpSet {
		if len(rec.Values) < size {
			return fmt.Errorf("%w: %d values for size %d", ErrRecord, len(rec.Values), size)
		}
		e.Set(rec.Addr, size, vv.Snapshot(), rec.Values, width(rec.Width))
		res.Sets++
		return nil
	}

	got := e.Get(rec.Addr, size, vv.Snapshot(), width(rec.Width))
	res.Gets++
	if rec.Expect != nil {
		res.Checked++
		if !slices.Equal(got, rec.Expect) {
			res.Mismatches++
		}
	}
	return nil
}
