package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/pulse/checks"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/store"
)

var now = time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*store.Store, *checks.Registry) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := checks.NewRegistry()
	require.NoError(t, Register(reg, WithClock(func() time.Time { return now })))
	return s, reg
}

func run(t *testing.T, reg *checks.Registry, id string, data any) checks.Result {
	t.Helper()
	c, ok := reg.Get(id)
	require.True(t, ok, "missing %s", id)
	res, err := c.Run(context.Background(), data)
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	_, reg := setup(t)
	assert.Equal(t, 4, reg.Len())

	c, _ := reg.Get(OverdueCriticalID)
	assert.Equal(t, checks.Critical, c.Priority())
	c, _ = reg.Get(UpcomingEventID)
	assert.Equal(t, checks.High, c.Priority())
	c, _ = reg.Get(StaleRemindersID)
	assert.Equal(t, checks.Medium, c.Priority())
	c, _ = reg.Get(IdleUserID)
	assert.Equal(t, checks.Low, c.Priority())

	err := Register(reg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrCodeDuplicateCheck))
}

func TestUpcomingEvent(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	assert.False(t, run(t, reg, UpcomingEventID, s).Notify)

	require.NoError(t, s.AddEvent(ctx, "Offsite", now.Add(2*time.Hour)))
	assert.False(t, run(t, reg, UpcomingEventID, s).Notify, "outside the lead time")

	require.NoError(t, s.AddEvent(ctx, "Standup", now.Add(20*time.Minute)))
	res := run(t, reg, UpcomingEventID, s.DB())
	assert.True(t, res.Notify)
	assert.Contains(t, res.Message, "Standup")
	assert.Contains(t, res.Message, "20m")
	assert.Equal(t, 1, res.Payload["count"])
}

func TestUpcomingEventLead(t *testing.T) {
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AddEvent(context.Background(), "Offsite", now.Add(2*time.Hour)))

	c := All(WithClock(func() time.Time { return now }), WithEventLead(3*time.Hour))[1]
	require.Equal(t, UpcomingEventID, c.ID())
	res, err := c.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Notify)
}

func TestIdleUser(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	assert.False(t, run(t, reg, IdleUserID, s).Notify, "no history")

	require.NoError(t, s.RecordActivity(ctx, "message", now.Add(-5*time.Hour)))
	res := run(t, reg, IdleUserID, s)
	assert.True(t, res.Notify)
	assert.Contains(t, res.Message, "5h0m")

	require.NoError(t, s.RecordActivity(ctx, "message", now.Add(-time.Hour)))
	assert.False(t, run(t, reg, IdleUserID, s).Notify)
}

func TestStaleReminders(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	_, err := s.AddReminder(ctx, store.Reminder{Text: "fresh"}, now)
	require.NoError(t, err)
	assert.False(t, run(t, reg, StaleRemindersID, s).Notify)

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := s.AddReminder(ctx, store.Reminder{Text: text, UpdatedAt: now.Add(-8 * 24 * time.Hour)}, now)
		require.NoError(t, err)
	}
	res := run(t, reg, StaleRemindersID, s)
	assert.True(t, res.Notify)
	assert.Contains(t, res.Message, "4 stale")
	assert.Contains(t, res.Message, "and 1 more")
	assert.NotContains(t, res.Message, "fresh")
}

func TestOverdueCritical(t *testing.T) {
	s, reg := setup(t)
	ctx := context.Background()

	_, err := s.AddReminder(ctx, store.Reminder{Text: "low", Priority: "low", Due: now.Add(-time.Hour)}, now)
	require.NoError(t, err)
	assert.False(t, run(t, reg, OverdueCriticalID, s).Notify)

	id, err := s.AddReminder(ctx, store.Reminder{Text: "pay rent", Priority: "critical", Due: now.Add(-time.Minute)}, now)
	require.NoError(t, err)
	res := run(t, reg, OverdueCriticalID, s)
	assert.True(t, res.Notify)
	assert.Contains(t, res.Message, "pay rent")
	assert.Equal(t, []int64{id}, res.Payload["ids"])

	require.NoError(t, s.CompleteReminder(ctx, id, now))
	assert.False(t, run(t, reg, OverdueCriticalID, s).Notify)
}

func TestUnsupportedData(t *testing.T) {
	_, reg := setup(t)
	for _, data := range []any{nil, "db", (*store.Store)(nil)} {
		c, _ := reg.Get(IdleUserID)
		_, err := c.Run(context.Background(), data)
		require.Error(t, err)
		assert.True(t, perrors.Is(err, perrors.ErrCodeCheckFailed))
	}
}
