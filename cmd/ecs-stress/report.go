package main

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/plus3/soloecs/ecs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type Report struct {
	// Configuration
	Duration    time.Duration
	Entities    int
	Duplicates  int
	UnloadEvery int
	Systems     int

	// Results
	TotalUpdates   int64
	TotalTime      time.Duration
	UpdateTime     Stats
	GCPauseMetrics bool
	MemStatsStart  runtime.MemStats
	MemStatsEnd    runtime.MemStats

	// Registry
	Storage     *ecs.StorageStats
	Singletons  []ecs.SingletonState
	Tally       Tally
	MixerFrames int
	Metrics     []MetricTotal
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

// MetricTotal is one metric family summed over its labels.
type MetricTotal struct {
	Name  string
	Value float64
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
}

// gatherTotals sums every counter and gauge in g per family, ordered by name.
func gatherTotals(g prometheus.Gatherer) ([]MetricTotal, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering metrics")
	}

	totals := make([]MetricTotal, 0, len(families))
	for _, family := range families {
		var sum float64
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				sum += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += m.GetGauge().GetValue()
			}
		}
		totals = append(totals, MetricTotal{Name: family.GetName(), Value: sum})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Name < totals[j].Name })
	return totals, nil
}

const reportTemplate = `
# ECS Stress Test Report

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Target Entities:** {{.Entities}}
- **Duplicate Singletons / Frame:** {{.Duplicates}}
- **Scene Unload Interval:** {{if .UnloadEvery}}{{.UnloadEvery}} frames{{else}}disabled{{end}}
- **Systems:** {{.Systems}}

## Performance Results
- **Total Updates:** {{.TotalUpdates}}
- **Total Test Time:** {{.TotalTime}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}

## World
- **Entities:** {{.Storage.TotalEntityCount}} ({{.Storage.PersistentCount}} persistent)
- **Archetypes:** {{.Storage.ArchetypeCount}}
- **Spawned / Expired:** {{.Tally.Spawned}} / {{.Tally.Expired}}
- **Scene Unloads:** {{.Tally.Unloads}}
- **Mixer Frames:** {{.MixerFrames}}

## Singletons
{{range .Singletons}}- {{.Name}}: {{state .}}
{{else}}- none registered
{{end}}
## Singleton Metrics
{{range .Metrics}}- {{.Name}}: {{printf "%.0f" .Value}}
{{end}}
## Memory Usage (Raw Bytes)
- Heap Alloc:     {{.MemStatsStart.HeapAlloc}} (start) -> {{.MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}}
- Total Alloc:    {{.MemStatsStart.TotalAlloc}} (start) -> {{.MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}}
- Sys Memory:     {{.MemStatsStart.Sys}} (start) -> {{.MemStatsEnd.Sys}} (end) -> delta: {{bsub .MemStatsEnd.Sys .MemStatsStart.Sys}}
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
- **Num GC Cycles:** {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{end}}`

func (r *Report) Generate(w io.Writer) error {
	fm := template.FuncMap{
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
		"state": describeState,
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return errors.Wrap(err, "parsing report template")
	}

	if r.Storage == nil {
		r.Storage = &ecs.StorageStats{}
	}
	return tmpl.Execute(w, r)
}

func describeState(s ecs.SingletonState) string {
	var parts []string
	switch {
	case s.Instance.Valid():
		parts = append(parts, fmt.Sprintf("entity %d", uint64(s.Instance.Id)))
	default:
		parts = append(parts, "no instance")
	}
	if s.Initialized {
		parts = append(parts, "initialized")
	}
	if s.Destroyed {
		parts = append(parts, "destroyed")
	}
	return strings.Join(parts, ", ")
}
