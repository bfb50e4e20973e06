package main

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/plus3/soloecs/ecs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Lifetime struct {
	Frames int
}

// Mixer is a registry-managed singleton. Systems spawn copies of it every
// frame to exercise duplicate destruction.
type Mixer struct {
	ecs.SingletonBase
	Channels int
	Frames   int
}

func (m *Mixer) OnInit() {
	m.Channels = 32
}

// Tally is a registry-managed singleton counting what the systems did.
type Tally struct {
	Spawned int
	Expired int
	Unloads int
}

type MotionSystem struct {
	Entities ecs.Query[struct {
		*Position
		*Velocity
	}]
}

func (s *MotionSystem) Execute(frame *ecs.UpdateFrame) {
	dt := float32(frame.DeltaTime)
	for _, item := range s.Entities.Iter() {
		item.Position.X += item.Velocity.DX * dt
		item.Position.Y += item.Velocity.DY * dt
	}
}

// ChurnSystem expires entities whose lifetime ran out and keeps the scene
// at its target population.
type ChurnSystem struct {
	Entities ecs.Query[struct{ *Lifetime }]
	Tally    ecs.Managed[Tally]

	target int
	rng    *rand.Rand
}

func (s *ChurnSystem) Execute(frame *ecs.UpdateFrame) {
	tally := s.Tally.Get()

	alive := 0
	for id, item := range s.Entities.Iter() {
		item.Lifetime.Frames--
		if item.Lifetime.Frames <= 0 {
			frame.Commands.Delete(id)
			if tally != nil {
				tally.Expired++
			}
			continue
		}
		alive++
	}

	for ; alive < s.target; alive++ {
		frame.Commands.Spawn(
			Position{X: s.rng.Float32() * 1000, Y: s.rng.Float32() * 1000},
			Velocity{DX: s.rng.Float32()*2 - 1, DY: s.rng.Float32()*2 - 1},
			Lifetime{Frames: 30 + s.rng.IntN(300)},
		)
		if tally != nil {
			tally.Spawned++
		}
	}
}

// IntruderSystem spawns extra Mixer entities that the registry must reject.
type IntruderSystem struct {
	Mixer ecs.Managed[Mixer]

	perFrame int
}

func (s *IntruderSystem) Execute(frame *ecs.UpdateFrame) {
	if mixer := s.Mixer.Get(); mixer != nil {
		mixer.Frames++
	}
	for i := 0; i < s.perFrame; i++ {
		frame.Commands.Spawn(Mixer{Channels: 1})
	}
}

// SceneSystem requests a scene unload every interval frames.
type SceneSystem struct {
	Tally ecs.Managed[Tally]

	interval int
	frames   int
}

func (s *SceneSystem) Execute(frame *ecs.UpdateFrame) {
	s.frames++
	if s.interval == 0 || s.frames%s.interval != 0 {
		return
	}
	frame.Commands.UnloadScene()
	if tally := s.Tally.Get(); tally != nil {
		tally.Unloads++
	}
}

type simulation struct {
	cfg        config
	logger     *zap.Logger
	metrics    *prometheus.Registry
	storage    *ecs.Storage
	singletons *ecs.SingletonRegistry
	scheduler  *ecs.Scheduler
}

func newSimulation(cfg config, logger *zap.Logger) *simulation {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Lifetime](registry)
	ecs.RegisterComponent[Mixer](registry)
	ecs.RegisterComponent[Tally](registry)

	promRegistry := prometheus.NewRegistry()
	storage := ecs.NewStorage(registry)
	host := ecs.NewStorageHost(storage, ecs.WithHostLogger(logger.Named("host")))
	singletons := ecs.NewSingletonRegistry(host,
		ecs.WithLogger(logger.Named("singletons")),
		ecs.WithMetrics(ecs.NewSingletonMetrics(promRegistry)),
	)

	scheduler := ecs.NewScheduler(storage,
		ecs.WithSingletons(singletons),
		ecs.WithCompaction(cfg.CompactHoles),
	)
	scheduler.Register(&MotionSystem{})
	scheduler.Register(&ChurnSystem{
		target: cfg.Entities,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	})
	scheduler.Register(&IntruderSystem{perFrame: cfg.Duplicates})
	scheduler.Register(&SceneSystem{interval: cfg.UnloadEvery})

	return &simulation{
		cfg:        cfg,
		logger:     logger,
		metrics:    promRegistry,
		storage:    storage,
		singletons: singletons,
		scheduler:  scheduler,
	}
}

// Run drives frames until ctx is done or the configured frame count is reached.
func (s *simulation) Run(ctx context.Context) *Report {
	report := &Report{
		Duration:       s.cfg.Duration,
		Entities:       s.cfg.Entities,
		Duplicates:     s.cfg.Duplicates,
		UnloadEvery:    s.cfg.UnloadEvery,
		Systems:        s.scheduler.GetStats().SystemCount,
		GCPauseMetrics: s.cfg.GCPauseMetrics,
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	start := time.Now()
	last := start

Loop:
	for s.cfg.Frames == 0 || report.TotalUpdates < int64(s.cfg.Frames) {
		select {
		case <-ctx.Done():
			break Loop
		default:
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		s.scheduler.Once(dt.Seconds())
		report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(now))
		report.TotalUpdates++

		if report.TotalUpdates%1000 == 0 {
			s.logger.Debug("frame checkpoint",
				zap.Int64("frame", report.TotalUpdates),
				zap.Int("entities", s.storage.CollectStats().TotalEntityCount),
			)
		}
	}

	report.TotalTime = time.Since(start)
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)

	report.Storage = s.storage.CollectStats()
	report.Singletons = s.singletons.States()
	if tally := ecs.Instance[Tally](s.singletons); tally != nil {
		report.Tally = *tally
	}
	if mixer := ecs.Instance[Mixer](s.singletons); mixer != nil {
		report.MixerFrames = mixer.Frames
	}

	totals, err := gatherTotals(s.metrics)
	if err != nil {
		s.logger.Warn("collecting metrics failed", zap.Error(err))
	}
	report.Metrics = totals

	return report
}
