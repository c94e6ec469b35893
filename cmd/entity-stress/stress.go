package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/plus3/ecsid/ecs"
	"github.com/plus3/ecsid/internal/config"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stressRunner drives an allocator through frames of concurrent reservations,
// a flush and a round of frees, checking the allocator's invariants after each frame.
type stressRunner struct {
	cfg      config.StressConfig
	log      *zap.Logger
	entities *ecs.Entities
	rng      *rand.Rand

	// alive holds every entity that has not been freed, aliveAt maps each to its
	// position in alive.
	alive   []ecs.Entity
	aliveAt *ecs.EntityMap[int]
	placed  int
	nextID  uint32

	reserved *xsync.Counter
	invalid  *xsync.Counter
	freed    *xsync.Counter

	registry     metrics.Registry
	frameTimer   metrics.Timer
	reserveTimer metrics.Timer
	flushTimer   metrics.Timer
	reserveMeter metrics.Meter
}

func newStressRunner(cfg config.StressConfig, log *zap.Logger) *stressRunner {
	registry := metrics.NewRegistry()
	return &stressRunner{
		cfg:          cfg,
		log:          log,
		entities:     ecs.NewEntities(ecs.WithLogger(log), ecs.WithCapacity(cfg.ReservePerFrame)),
		rng:          rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		aliveAt:      ecs.NewEntityMap[int](cfg.ReservePerFrame),
		reserved:     xsync.NewCounter(),
		invalid:      xsync.NewCounter(),
		freed:        xsync.NewCounter(),
		registry:     registry,
		frameTimer:   metrics.NewRegisteredTimer("frame", registry),
		reserveTimer: metrics.NewRegisteredTimer("reserve", registry),
		flushTimer:   metrics.NewRegisteredTimer("flush", registry),
		reserveMeter: metrics.NewRegisteredMeter("reservations", registry),
	}
}

// Run executes frames until the configured frame count is reached or ctx is done.
// It returns the number of frames completed.
func (r *stressRunner) Run(ctx context.Context) (int, error) {
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	frames := 0
	for r.cfg.Frames <= 0 || frames < r.cfg.Frames {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		if err := r.frame(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			return frames, fmt.Errorf("frame %d: %w", frames, err)
		}
		r.frameTimer.UpdateSince(start)
		frames++

		if frames%10 == 0 {
			r.log.Debug("frame complete",
				zap.Int("frame", frames),
				zap.Int("alive", len(r.alive)),
				zap.Int("placed", r.placed),
				zap.Int("slots", r.entities.TotalCount()))
		}
	}
	return frames, nil
}

func (r *stressRunner) frame(ctx context.Context) error {
	batches, err := r.reserve(ctx)
	if err != nil {
		return err
	}

	frameSet := ecs.NewEntitySet(r.cfg.ReservePerFrame)
	for _, batch := range batches {
		for _, e := range batch {
			if !frameSet.Add(e) {
				return fmt.Errorf("entity %s reserved twice in one frame", e)
			}
			if r.aliveAt.Has(e) {
				return fmt.Errorf("entity %s reserved while still alive", e)
			}
			if !r.entities.Contains(e) {
				return fmt.Errorf("reserved entity %s is not contained before flush", e)
			}
		}
	}

	flushStart := time.Now()
	flushed := r.entities.Flush(r.resolve)
	r.flushTimer.UpdateSince(flushStart)

	if flushed != frameSet.Len() {
		return fmt.Errorf("flushed %d entities, reserved %d", flushed, frameSet.Len())
	}

	for _, batch := range batches {
		for _, e := range batch {
			r.aliveAt.Put(e, len(r.alive))
			r.alive = append(r.alive, e)
		}
	}

	if err := r.free(); err != nil {
		return err
	}
	if r.entities.Len() != r.placed {
		return fmt.Errorf("allocator reports %d placed entities, expected %d", r.entities.Len(), r.placed)
	}
	return nil
}

// reserve splits the frame's reservations across workers. Every worker mixes
// single and batched reservations.
func (r *stressRunner) reserve(ctx context.Context) ([][]ecs.Entity, error) {
	start := time.Now()
	defer r.reserveTimer.UpdateSince(start)

	workers := r.cfg.Workers
	batches := make([][]ecs.Entity, workers)
	reserver := r.entities.Reserver()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := range workers {
		share := r.cfg.ReservePerFrame / workers
		if w < r.cfg.ReservePerFrame%workers {
			share++
		}

		g.Go(func() error {
			out := make([]ecs.Entity, 0, share)
			for len(out) < share {
				if err := ctx.Err(); err != nil {
					return err
				}
				remaining := share - len(out)
				if r.cfg.BatchSize <= 1 || len(out)%2 == 0 {
					out = append(out, reserver.ReserveEntity())
					continue
				}
				n := min(uint32(remaining), r.cfg.BatchSize)
				for e := range reserver.ReserveEntities(n).All() {
					out = append(out, e)
				}
			}
			batches[w] = out
			r.reserved.Add(int64(len(out)))
			r.reserveMeter.Mark(int64(len(out)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Reservations handed out before the error still have to be flushed.
		r.entities.FlushAsInvalid()
		return nil, err
	}
	return batches, nil
}

// resolve places most flushed entities at a synthetic location and leaves
// InvalidRatio of them without one.
func (r *stressRunner) resolve(ecs.Entity) (ecs.EntityLocation, bool) {
	if r.rng.Float64() < r.cfg.InvalidRatio {
		r.invalid.Inc()
		return ecs.InvalidLocation, false
	}
	r.placed++
	r.nextID++
	return ecs.EntityLocation{ArchetypeId: 0, Row: r.nextID}, true
}

// free releases FreeRatio of the alive entities, chosen at random, and checks
// that their handles go stale.
func (r *stressRunner) free() error {
	count := int(float64(len(r.alive)) * r.cfg.FreeRatio)
	for range count {
		i := r.rng.IntN(len(r.alive))
		e := r.alive[i]

		loc, err := r.entities.Free(e)
		if err != nil {
			return fmt.Errorf("free %s: %w", e, err)
		}
		if loc.IsValid() {
			r.placed--
		}
		if r.entities.Contains(e) {
			return fmt.Errorf("entity %s still contained after free", e)
		}

		last := len(r.alive) - 1
		r.alive[i] = r.alive[last]
		r.aliveAt.Put(r.alive[i], i)
		r.alive = r.alive[:last]
		r.aliveAt.Del(e)
	}
	r.freed.Add(int64(count))
	return nil
}

// fill copies the runner's counters and timers into the report.
func (r *stressRunner) fill(report *Report) {
	report.Reserved = r.reserved.Value()
	report.Invalid = r.invalid.Value()
	report.Freed = r.freed.Value()
	report.Alive = len(r.alive)
	report.Placed = r.entities.Len()
	report.TotalSlots = r.entities.TotalCount()
	report.FreeSlots = r.entities.FreeCount()
	report.ReserveRate = r.reserveMeter.RateMean()

	report.FrameTime = timerStats(r.frameTimer)
	report.ReserveTime = timerStats(r.reserveTimer)
	report.FlushTime = timerStats(r.flushTimer)
}

func (r *stressRunner) Close() {
	r.registry.UnregisterAll()
}
