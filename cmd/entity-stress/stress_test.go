package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/plus3/ecsid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func smallStressConfig() config.StressConfig {
	return config.StressConfig{
		Frames:          20,
		Workers:         4,
		ReservePerFrame: 1000,
		BatchSize:       16,
		InvalidRatio:    0.2,
		FreeRatio:       0.3,
		Seed:            7,
	}
}

func TestStressRunner(t *testing.T) {
	runner := newStressRunner(smallStressConfig(), zaptest.NewLogger(t))
	defer runner.Close()

	frames, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, frames)

	var report Report
	runner.fill(&report)

	assert.Equal(t, int64(20*1000), report.Reserved)
	assert.Equal(t, report.Reserved-report.Freed, int64(report.Alive))
	assert.Equal(t, report.Alive+report.FreeSlots, report.TotalSlots)
	assert.Greater(t, report.Invalid, int64(0))
	assert.LessOrEqual(t, report.Placed, report.Alive)
	assert.NotZero(t, report.FrameTime.Max)
}

func TestStressRunnerSingleReservations(t *testing.T) {
	cfg := smallStressConfig()
	cfg.BatchSize = 1
	cfg.InvalidRatio = 0
	cfg.FreeRatio = 1

	runner := newStressRunner(cfg, zaptest.NewLogger(t))
	defer runner.Close()

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	var report Report
	runner.fill(&report)
	assert.Equal(t, 0, report.Alive)
	assert.Equal(t, 0, report.Placed)
	assert.Equal(t, 1000, report.TotalSlots, "every frame recycles the slots freed by the previous one")
}

func TestStressRunnerStopsOnContext(t *testing.T) {
	cfg := smallStressConfig()
	cfg.Frames = 0
	cfg.Duration = 50 * time.Millisecond

	runner := newStressRunner(cfg, zaptest.NewLogger(t))
	defer runner.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := runner.Run(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after its duration elapsed")
	}
}

func TestReportFormats(t *testing.T) {
	report := &Report{
		Frames:          3,
		Workers:         2,
		ReservePerFrame: 10,
		CompletedFrames: 3,
		Reserved:        30,
		FrameTime:       Stats{Avg: time.Millisecond},
	}

	var text bytes.Buffer
	require.NoError(t, report.Generate(&text))
	assert.Contains(t, text.String(), "**Completed Frames:** 3")
	assert.Contains(t, text.String(), "| frame   | 1ms |")

	var out bytes.Buffer
	require.NoError(t, report.WriteYAML(&out))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 30, decoded["reserved"])
	assert.Equal(t, "1ms", decoded["frame_time"].(map[string]any)["avg"])
	assert.NotContains(t, decoded, "memstatsstart")
}
