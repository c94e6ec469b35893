package main

import (
	"fmt"
	"io"
	"runtime"
	"text/template"
	"time"

	"github.com/rcrowley/go-metrics"
	"gopkg.in/yaml.v3"
)

type Report struct {
	// Configuration
	Frames          int           `yaml:"frames"`
	Duration        time.Duration `yaml:"duration"`
	Workers         int           `yaml:"workers"`
	ReservePerFrame int           `yaml:"reserve_per_frame"`
	BatchSize       uint32        `yaml:"batch_size"`

	// Results
	CompletedFrames int           `yaml:"completed_frames"`
	TotalTime       time.Duration `yaml:"total_time"`
	Reserved        int64         `yaml:"reserved"`
	Invalid         int64         `yaml:"invalid"`
	Freed           int64         `yaml:"freed"`
	Alive           int           `yaml:"alive"`
	Placed          int           `yaml:"placed"`
	TotalSlots      int           `yaml:"total_slots"`
	FreeSlots       int           `yaml:"free_slots"`
	ReserveRate     float64       `yaml:"reserve_rate"`

	FrameTime   Stats `yaml:"frame_time"`
	ReserveTime Stats `yaml:"reserve_time"`
	FlushTime   Stats `yaml:"flush_time"`

	GCPauseMetrics bool             `yaml:"-"`
	MemStatsStart  runtime.MemStats `yaml:"-"`
	MemStatsEnd    runtime.MemStats `yaml:"-"`
}

type Stats struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
	Avg time.Duration `yaml:"avg"`
	P99 time.Duration `yaml:"p99"`
}

func timerStats(t metrics.Timer) Stats {
	snapshot := t.Snapshot()
	if snapshot.Count() == 0 {
		return Stats{}
	}
	return Stats{
		Min: time.Duration(snapshot.Min()),
		Max: time.Duration(snapshot.Max()),
		Avg: time.Duration(snapshot.Mean()),
		P99: time.Duration(snapshot.Percentile(0.99)),
	}
}

// WriteYAML writes the report as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# Entity Allocator Stress Report

## Test Configuration
- **Frames:** {{.Frames}}
- **Duration Limit:** {{.Duration}}
- **Workers:** {{.Workers}}
- **Reservations per Frame:** {{.ReservePerFrame}}
- **Batch Size:** {{.BatchSize}}

## Results
- **Completed Frames:** {{.CompletedFrames}}
- **Total Test Time:** {{.TotalTime}}
- **Reserved:** {{.Reserved}} ({{printf "%.0f" .ReserveRate}}/s)
- **Flushed Without Location:** {{.Invalid}}
- **Freed:** {{.Freed}}
- **Alive / Placed:** {{.Alive}} / {{.Placed}}
- **Slots (free):** {{.TotalSlots}} ({{.FreeSlots}})

## Timings
| Phase   | Avg | Min | Max | p99 |
|---------|-----|-----|-----|-----|
| frame   | {{.FrameTime.Avg}} | {{.FrameTime.Min}} | {{.FrameTime.Max}} | {{.FrameTime.P99}} |
| reserve | {{.ReserveTime.Avg}} | {{.ReserveTime.Min}} | {{.ReserveTime.Max}} | {{.ReserveTime.P99}} |
| flush   | {{.FlushTime.Avg}} | {{.FlushTime.Min}} | {{.FlushTime.Max}} | {{.FlushTime.P99}} |

## Memory Usage (MiB)
- Heap Alloc:     {{mb .MemStatsStart.HeapAlloc}} (start) -> {{mb .MemStatsEnd.HeapAlloc}} (end) -> delta: {{mb (bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc)}}
- Total Alloc:    {{mb .MemStatsStart.TotalAlloc}} (start) -> {{mb .MemStatsEnd.TotalAlloc}} (end) -> delta: {{mb (bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc)}}
- Sys Memory:     {{mb .MemStatsStart.Sys}} (start) -> {{mb .MemStatsEnd.Sys}} (end) -> delta: {{mb (bsub .MemStatsEnd.Sys .MemStatsStart.Sys)}}
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}

{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
- **Num GC Cycles:** {{ usub .MemStatsEnd.NumGC .MemStatsStart.NumGC }}
{{end}}
`

	fm := template.FuncMap{
		"mb": func(v any) string {
			switch val := v.(type) {
			case uint64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			case int64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			default:
				return "N/A"
			}
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
