package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/pulse/bus"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
)

func TestOrigin(t *testing.T) {
	cycle, check := Origin(context.Background())
	assert.Empty(t, cycle)
	assert.Empty(t, check)

	ctx := WithOrigin(context.Background(), "cyc-1", "upcoming_event")
	cycle, check = Origin(ctx)
	assert.Equal(t, "cyc-1", cycle)
	assert.Equal(t, "upcoming_event", check)
}

func TestBus_Notify(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	sub, err := b.Subscribe(bus.SubjectNotify)
	require.NoError(t, err)

	n := NewBus(b)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	ctx := WithOrigin(context.Background(), "cyc-1", "upcoming_event")
	ok, err := n.Notify(ctx, "Standup in 10 minutes", "Open the agenda")
	require.NoError(t, err)
	assert.True(t, ok)

	msg := <-sub.Messages()
	var got Notification
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, Notification{
		Message:   "Standup in 10 minutes",
		Action:    "Open the agenda",
		CheckID:   "upcoming_event",
		CycleID:   "cyc-1",
		Timestamp: fixed,
	}, got)
}

func TestBus_Alert(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	sub, _ := b.Subscribe(bus.SubjectAlert)

	n := NewBus(b)
	require.NoError(t, n.Alert(context.Background(), Alert{
		Title:   "breaker tripped",
		Message: "check c2 disabled",
		CheckID: "c2",
	}))

	var got Alert
	require.NoError(t, json.Unmarshal((<-sub.Messages()).Data, &got))
	assert.Equal(t, SeverityWarning, got.Severity, "default severity")
	assert.Equal(t, "c2", got.CheckID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBus_PublishFailure(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	b.Close()

	n := NewBus(b)
	ok, err := n.Notify(context.Background(), "hi", "")
	assert.False(t, ok)
	assert.True(t, perrors.Is(err, perrors.ErrCodeNotifyFailed))
	assert.True(t, perrors.Is(n.Alert(context.Background(), Alert{Title: "x"}), perrors.ErrCodeNotifyFailed))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)

	l := NewLog(logger)
	ok, err := l.Notify(WithOrigin(context.Background(), "cyc-9", "idle_user"), "Time for a break", "")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Alert(context.Background(), Alert{Severity: SeverityHigh, Title: "cycle failed"}))

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "check_id=idle_user")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "cycle failed")

	ok, err = NewLog(nil).Notify(context.Background(), "discarded", "")
	assert.NoError(t, err)
	assert.True(t, ok)
}

type stubNotifier struct {
	ok    bool
	err   error
	calls int
}

func (s *stubNotifier) Notify(context.Context, string, string) (bool, error) {
	s.calls++
	return s.ok, s.err
}

type stubAlerter struct {
	err    error
	alerts []Alert
}

func (s *stubAlerter) Alert(_ context.Context, a Alert) error {
	s.alerts = append(s.alerts, a)
	return s.err
}

func TestMulti_Notify(t *testing.T) {
	failing := &stubNotifier{err: errors.New("down")}
	working := &stubNotifier{ok: true}

	ok, err := NewMulti(failing, working).Notify(context.Background(), "m", "")
	assert.True(t, ok, "delivered by one sink")
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)

	ok, err = NewMulti(&stubNotifier{ok: true}).Notify(context.Background(), "m", "")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = NewMulti().Notify(context.Background(), "m", "")
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestMulti_Alert(t *testing.T) {
	a1 := &stubAlerter{}
	a2 := &stubAlerter{err: errors.New("nope")}
	n := &stubNotifier{ok: true}

	m := NewMulti(a1, a2, n)
	err := m.Alert(context.Background(), Alert{Title: "t"})
	assert.Error(t, err)
	assert.Len(t, a1.alerts, 1)
	assert.Len(t, a2.alerts, 1)
	assert.Zero(t, n.calls, "notifier-only sink gets no alerts")
}

type fakeBot struct {
	sent    []tgbotapi.MessageConfig
	failFor map[string]bool
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, msg)
	if f.failFor[msg.ParseMode] {
		return tgbotapi.Message{}, errors.New("bad request: can't parse entities")
	}
	return tgbotapi.Message{}, nil
}

func TestTelegram_Notify(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegramWithBot(bot, 42, 0)

	ok, err := tg.Notify(context.Background(), "Meeting <soon> & prep", "Join now")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)
	assert.Equal(t, "Meeting &lt;soon&gt; &amp; prep\n\n<i>Join now</i>", bot.sent[0].Text)
}

func TestTelegram_PlainTextFallback(t *testing.T) {
	bot := &fakeBot{failFor: map[string]bool{tgbotapi.ModeHTML: true}}
	tg := NewTelegramWithBot(bot, 42, 0)

	ok, err := tg.Notify(context.Background(), "hello", "act")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, bot.sent, 2)
	assert.Empty(t, bot.sent[1].ParseMode)
	assert.Equal(t, "hello\n\nact", bot.sent[1].Text)
}

func TestTelegram_SendFailure(t *testing.T) {
	bot := &fakeBot{failFor: map[string]bool{tgbotapi.ModeHTML: true, "": true}}
	tg := NewTelegramWithBot(bot, 42, 0)

	ok, err := tg.Notify(context.Background(), "hello", "")
	assert.False(t, ok)
	assert.True(t, perrors.Is(err, perrors.ErrCodeNotifyFailed))
}

func TestTelegram_AlertChat(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegramWithBot(bot, 42, 99)

	require.NoError(t, tg.Alert(context.Background(), Alert{
		Severity: SeverityHigh,
		Title:    "breaker tripped",
		Message:  "3 consecutive failures",
		CheckID:  "c2",
	}))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(99), bot.sent[0].ChatID)
	assert.True(t, strings.HasPrefix(bot.sent[0].Text, "<b>[HIGH] breaker tripped</b>"))
	assert.Contains(t, bot.sent[0].Text, "<code>c2</code>")
}

func TestNewTelegram_Validation(t *testing.T) {
	_, err := NewTelegram("", 1, 0)
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
	_, err = NewTelegram("token", 0, 0)
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{""}, splitMessage("", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"line one", "line two"}, splitMessage("line one\nline two", 10))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, splitMessage("abcdefghijk", 5))
}
