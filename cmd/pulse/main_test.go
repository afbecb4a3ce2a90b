package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/pulse/breaker"
	"github.com/vinayprograms/pulse/builtin"
	"github.com/vinayprograms/pulse/config"
	"github.com/vinayprograms/pulse/heartbeat"
	"github.com/vinayprograms/pulse/metrics"
)

// testConfig runs without an LLM, without quiet hours and against path.
func testConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = path
	cfg.Decision.Enabled = false
	cfg.Heartbeat.QuietHoursStart = 0
	cfg.Heartbeat.QuietHoursEnd = 0
	cfg.LogLevel = "error"
	require.NoError(t, cfg.Validate())
	return cfg
}

func runOnce(t *testing.T, cfg *config.Config) heartbeat.Summary {
	t.Helper()
	var out, errOut bytes.Buffer
	require.NoError(t, runHeartbeat(context.Background(), cfg, &out, &errOut, true))

	var sum heartbeat.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	return sum
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "history", "breakers", "checks"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRunHeartbeat_OneShotFallback(t *testing.T) {
	sum := runOnce(t, testConfig(t, ":memory:"))

	assert.Equal(t, heartbeat.StatusSuccess, sum.Status)
	assert.True(t, sum.Fallback)
	assert.Equal(t, []string{builtin.UpcomingEventID}, sum.SelectedChecks)
	assert.Equal(t, 1, sum.ChecksExecuted)
	assert.Equal(t, 0, sum.ChecksNotified)
	assert.NotEmpty(t, sum.CycleID)
}

func TestRunHeartbeat_Disabled(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	cfg.Heartbeat.Enabled = false

	sum := runOnce(t, cfg)
	assert.Equal(t, heartbeat.StatusDisabled, sum.Status)
	assert.Zero(t, sum.ChecksExecuted)
}

func TestRunHeartbeat_BadMode(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	cfg.Heartbeat.Mode = "forever"

	var out, errOut bytes.Buffer
	err := runHeartbeat(context.Background(), cfg, &out, &errOut, false)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestBreakerStateSurvivesProcesses(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, filepath.Join(t.TempDir(), "pulse.db"))
	logger := newLogger(cfg, &bytes.Buffer{})

	first, err := openBase(ctx, cfg, logger)
	require.NoError(t, err)
	first.breaker.RecordFailure(ctx, builtin.UpcomingEventID)
	first.breaker.RecordFailure(ctx, builtin.UpcomingEventID)
	require.NoError(t, first.close())

	second, err := openBase(ctx, cfg, logger)
	require.NoError(t, err)
	defer second.close()

	states, err := second.breaker.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, builtin.UpcomingEventID, states[0].CheckID)
	assert.Equal(t, int64(2), states[0].Failures)
}

func TestLoadHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, filepath.Join(dir, "pulse.db"))
	cfg.Metrics.JSONLPath = filepath.Join(dir, "cycles.jsonl")
	cfg.Metrics.IndexPath = filepath.Join(dir, "cycles.bleve")

	first := runOnce(t, cfg)
	second := runOnce(t, cfg)

	var errOut bytes.Buffer
	cycles, err := loadHistory(context.Background(), cfg, &errOut, 10, "")
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	ids := []string{cycles[0].ID, cycles[1].ID}
	assert.ElementsMatch(t, []string{first.CycleID, second.CycleID}, ids)

	found, err := loadHistory(context.Background(), cfg, &errOut, 10, "status:success")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	cfg.Metrics.SQLite = false
	fromFile, err := loadHistory(context.Background(), cfg, &errOut, 1, "")
	require.NoError(t, err)
	assert.Len(t, fromFile, 1)
}

func TestLoadHistory_NotConfigured(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	cfg.Metrics.SQLite = false

	var errOut bytes.Buffer
	_, err := loadHistory(context.Background(), cfg, &errOut, 10, "")
	assert.Error(t, err)

	_, err = loadHistory(context.Background(), cfg, &errOut, 10, "status:error")
	assert.Error(t, err, "search needs an index path")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, heartbeat.Summary{
		CycleID:        "abc",
		Status:         heartbeat.StatusPartialSuccess,
		SelectedChecks: []string{"a", "b"},
		ChecksExecuted: 2,
		ChecksFailed:   1,
		Reasoning:      "meeting soon",
		QuietHours:     true,
		Error:          "boom",
	}, false))

	out := buf.String()
	assert.Contains(t, out, "cycle abc")
	assert.Contains(t, out, "partial_success")
	assert.Contains(t, out, "a, b")
	assert.Contains(t, out, "failed: 1")
	assert.Contains(t, out, "meeting soon")
	assert.Contains(t, out, "quiet hours")
	assert.Contains(t, out, "boom")

	buf.Reset()
	require.NoError(t, printSummary(&buf, heartbeat.Summary{CycleID: "x", Status: heartbeat.StatusSuccess}, false))
	assert.Contains(t, buf.String(), "(none)")
}

func TestRenderCycles(t *testing.T) {
	var buf bytes.Buffer
	renderCycles(&buf, []metrics.Cycle{{
		ID:         "0123456789abcdef",
		Timestamp:  time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC),
		Status:     "error",
		Selected:   []string{"idle_user"},
		Fallback:   true,
		DurationMS: 1500,
		Reasoning:  "fallback: high-priority checks",
	}})

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "(fallback)")
	assert.Contains(t, out, "idle_user")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "1 cycle(s)")
}

func TestBreakerStatus(t *testing.T) {
	now := time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.Contains(t, breakerStatus(breaker.State{CheckID: "a", DisabledUntil: &later}, now), "open until")
	assert.Contains(t, breakerStatus(breaker.State{CheckID: "a", Failures: 2}, now), "degraded")
	assert.Contains(t, breakerStatus(breaker.State{CheckID: "a", DisabledUntil: &earlier}, now), "closed")

	var buf bytes.Buffer
	renderBreakers(&buf, nil, now)
	assert.Contains(t, buf.String(), "no breaker state")

	buf.Reset()
	renderBreakers(&buf, []breaker.State{{CheckID: "idle_user", Failures: 1}}, now)
	assert.Contains(t, buf.String(), "idle_user")
}

func TestRenderChecks(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	var errOut bytes.Buffer
	a, err := openBase(context.Background(), cfg, newLogger(cfg, &errOut))
	require.NoError(t, err)
	defer a.close()

	a.breaker.RecordFailure(context.Background(), builtin.IdleUserID)

	var buf bytes.Buffer
	renderChecks(context.Background(), &buf, a.registry, a.breaker, time.Now())
	out := buf.String()
	for _, id := range []string{builtin.UpcomingEventID, builtin.IdleUserID, builtin.StaleRemindersID, builtin.OverdueCriticalID} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "degraded")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
