package trace

import (
	"fmt"
	"math/rand/v2"

	"github.com/kolkov/critpath/internal/shadow/version"
)

// SynthConfig shapes a synthetic nested-loop trace.
type SynthConfig struct {
	Name string
	Seed uint64
	// Depth is the loop nest depth; Trip the iterations of every loop.
	Depth int
	Trip  int
	// Footprint is the number of distinct slots touched, Accesses the
	// read-modify-write pairs per innermost iteration.
	Footprint int
	Accesses  int
	// Width is the access size in bytes, 8 or 4.
	Width int
	// Base is the first address touched.
	Base uint64
}

func (c *SynthConfig) defaults() {
	if c.Depth < 1 {
		c.Depth = 3
	}
	c.Depth = min(c.Depth, version.MaxLevel)
	if c.Trip < 1 {
		c.Trip = 4
	}
	if c.Footprint < 1 {
		c.Footprint = 256
	}
	if c.Accesses < 1 {
		c.Accesses = 4
	}
	if c.Width != 4 {
		c.Width = 8
	}
	if c.Base == 0 {
		c.Base = 0x10000000
	}
}

type stamp struct {
	v version.Version
	t uint64
}

// synth emits the trace and keeps a reference model of every slot, so each
// get carries the tag vector a correct shadow memory must return.
type synth struct {
	cfg   SynthConfig
	w     *Writer
	rng   *rand.Rand
	vv    *version.Vector
	model map[uint64][]stamp
	n     int
}

// Synthesize writes a self-checking nested-loop trace to w and returns the
// number of records written. Each innermost iteration reads a random slot,
// then writes a random slot with the read tag vector advanced by a small
// random cost, the way a critical path profiler propagates time.
func Synthesize(w *Writer, cfg SynthConfig) (int, error) {
	cfg.defaults()
	s := &synth{
		cfg:   cfg,
		w:     w,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		vv:    version.New(),
		model: make(map[uint64][]stamp),
	}
	if err := s.loop(0); err != nil {
		return s.n, err
	}
	return s.n, w.Flush()
}

func (s *synth) emit(rec Record) error {
	s.n++
	if err := s.w.Write(rec); err != nil {
		return fmt.Errorf("trace: synth record %d: %w", s.n, err)
	}
	return nil
}

func (s *synth) loop(level int) error {
	for range s.cfg.Trip {
		s.vv.Enter(level)
		if err := s.emit(Record{Op: OpEnter, Level: level}); err != nil {
			return err
		}
		var err error
		if level == s.cfg.Depth-1 {
			err = s.body()
		} else {
			err = s.loop(level + 1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *synth) addr() uint64 {
	return s.cfg.Base + uint64(s.rng.IntN(s.cfg.Footprint))*uint64(s.cfg.Width)
}

func (s *synth) body() error {
	size := s.vv.Len()
	for range s.cfg.Accesses {
		src := s.addr()
		got := s.read(src, size)
		if err := s.emit(Record{Op: OpGet, Addr: src, Size: size, Width: s.cfg.Width, Expect: got}); err != nil {
			return err
		}

		dst := s.addr()
		values := make([]uint64, size)
		cost := 1 + s.rng.Uint64N(4)
		for l := range values {
			values[l] = got[l] + cost
		}
		s.write(dst, values)
		if err := s.emit(Record{Op: OpSet, Addr: dst, Size: size, Width: s.cfg.Width, Values: values}); err != nil {
			return err
		}
	}
	return nil
}

func (s *synth) read(addr uint64, size int) []uint64 {
	out := make([]uint64, size)
	st := s.model[addr]
	for l := range out {
		if l < len(st) && st[l].v == s.vv.Get(l) {
			out[l] = st[l].t
		}
	}
	return out
}

func (s *synth) write(addr uint64, values []uint64) {
	st := s.model[addr]
	for len(st) < len(values) {
		st = append(st, stamp{})
	}
	for l, t := range values {
		st[l] = stamp{v: s.vv.Get(l), t: t}
	}
	s.model[addr] = st
}
