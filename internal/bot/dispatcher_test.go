package bot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/intake-bot/internal/delivery"
	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/flow"
	"github.com/ashureev/intake-bot/internal/gate"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/session"
	"github.com/ashureev/intake-bot/internal/store"
	"github.com/ashureev/intake-bot/internal/transport"
)

const (
	adminID = "100"
	userID  = "42"
)

type fakeSender struct {
	mu      sync.Mutex
	msgs    map[string][]transport.Message
	docs    map[string][]transport.Document
	panicOn string
	// stallOn blocks sends to that recipient until release is closed.
	stallOn string
	release chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{msgs: map[string][]transport.Message{}, docs: map[string][]transport.Document{}}
}

func (f *fakeSender) Send(ctx context.Context, to string, msg transport.Message) error {
	if to == f.panicOn {
		panic("send exploded")
	}
	if f.stallOn != "" && to == f.stallOn {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[to] = append(f.msgs[to], msg)
	return nil
}

func (f *fakeSender) SendDocument(_ context.Context, to string, doc transport.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[to] = append(f.docs[to], doc)
	return nil
}

func (f *fakeSender) last(to string) transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.msgs[to]
	if len(m) == 0 {
		return transport.Message{}
	}
	return m[len(m)-1]
}

func (f *fakeSender) count(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[to])
}

type harness struct {
	d        *Dispatcher
	sender   *fakeSender
	records  *store.RecordStore
	blocks   *store.BlockStore
	sessions *session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	records, err := store.OpenRecords(filepath.Join(dir, "data.json"), logger)
	require.NoError(t, err)
	blocks, err := store.OpenBlocklist(ctx, filepath.Join(dir, "blocked.json"), logger)
	require.NoError(t, err)
	graph, err := flow.SurveyGraph()
	require.NoError(t, err)

	sender := newFakeSender()
	sessions := session.NewStore()
	g := gate.New(blocks, time.Hour)
	admins := identity.NewAdmins([]string{adminID, "200"})
	fan := delivery.New(sender, delivery.Options{
		Logger:     logger,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	engine := flow.NewEngine(flow.Config{
		Graph:      graph,
		Sessions:   sessions,
		Gate:       g,
		Records:    records,
		Delivery:   fan,
		Sender:     sender,
		Recipients: admins.IDs,
		Logger:     logger,
	})
	d := New(Config{
		Engine:          engine,
		Admins:          admins,
		Records:         records,
		Blocks:          blocks,
		Gate:            g,
		Sessions:        sessions,
		Sender:          sender,
		Delivery:        fan,
		BroadcastChatID: "-1001",
		Logger:          logger,
	})
	return &harness{d: d, sender: sender, records: records, blocks: blocks, sessions: sessions}
}

func msg(from, text string) transport.Update {
	return transport.Update{User: domain.User{ID: from}, ChatID: from, Text: text}
}

func (h *harness) send(from, text string) {
	h.d.Handle(context.Background(), msg(from, text))
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, name, arg string
		ok            bool
	}{
		{"/start", "start", "", true},
		{"/Block@intake_bot 12345", "block", "12345", true},
		{"/broadcast  hello\nworld ", "broadcast", "hello\nworld", true},
		{"/", "", "", false},
		{"start", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		name, arg, ok := parseCommand(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.arg, arg, tc.in)
	}
}

func TestNonAdminGetsNoResponseToPrivilegedCommands(t *testing.T) {
	h := newHarness(t)
	for _, c := range []string{"/stats", "/export", "/block 1", "/unblock 1", "/blocked", "/clear", "/broadcast hi"} {
		h.send(userID, c)
	}
	assert.Zero(t, h.sender.count(userID))
	assert.False(t, h.blocks.IsBlocked("1"))
}

func TestAdminButtonsIgnoredForUsers(t *testing.T) {
	h := newHarness(t)
	h.send(userID, labelStats)
	assert.Equal(t, msgWelcomeUser, h.sender.last(userID).Text)
}

func TestStartShowsWelcomeAndDiscardsSession(t *testing.T) {
	h := newHarness(t)
	h.send(userID, flow.StartLabel)
	_, active := h.sessions.Get(userID)
	require.True(t, active)

	h.send(userID, "/start")
	_, active = h.sessions.Get(userID)
	assert.False(t, active)
	assert.Equal(t, msgWelcomeUser, h.sender.last(userID).Text)

	h.send(adminID, "/start")
	assert.Equal(t, msgWelcomeAdmin, h.sender.last(adminID).Text)
	assert.Equal(t, adminMenu(), h.sender.last(adminID).Buttons)
}

func TestBlockViaMenuPrompt(t *testing.T) {
	h := newHarness(t)

	h.send(adminID, labelBlock)
	assert.True(t, h.sender.last(adminID).RemoveKeyboard)

	h.send(adminID, "not-an-id")
	assert.Contains(t, h.sender.last(adminID).Text, "Неверный формат ID")

	h.send(adminID, "555")
	assert.Equal(t, "✅ Пользователь 555 заблокирован", h.sender.last(adminID).Text)
	assert.True(t, h.blocks.IsBlocked("555"))

	h.send(adminID, "/block 555")
	assert.Contains(t, h.sender.last(adminID).Text, "уже заблокирован")

	h.send(adminID, labelUnblock)
	h.send(adminID, "555")
	assert.Equal(t, "✅ Пользователь 555 разблокирован", h.sender.last(adminID).Text)
	assert.False(t, h.blocks.IsBlocked("555"))

	h.send(adminID, "/unblock 555")
	assert.Contains(t, h.sender.last(adminID).Text, "не был заблокирован")
}

func TestAdminCannotBeBlocked(t *testing.T) {
	h := newHarness(t)
	_, err := h.d.Block(context.Background(), adminID, "200")
	assert.ErrorIs(t, err, ErrAdminTarget)

	h.send(adminID, "/block 200")
	assert.Equal(t, "❌ Нельзя заблокировать администратора!", h.sender.last(adminID).Text)
	assert.False(t, h.blocks.IsBlocked("200"))
}

func TestBlockTakesEffectOnNextStartOnly(t *testing.T) {
	h := newHarness(t)

	h.send(userID, "/new")
	h.send(adminID, "/block "+userID)
	require.True(t, h.blocks.IsBlocked(userID))

	h.send(userID, "Иванов Иван Иванович")
	sess, ok := h.sessions.Get(userID)
	require.True(t, ok, "blocking must not end the running conversation")
	assert.Equal(t, flow.StepMilitaryUnit, sess.Step)

	h.send(userID, "/new")
	assert.Equal(t, "🚫 Вы заблокированы в боте", h.sender.last(userID).Text)
}

func TestUnblockRestoresStart(t *testing.T) {
	h := newHarness(t)
	const other = "77"

	h.send(adminID, "/block "+other)
	h.send(other, "/new")
	assert.Equal(t, "🚫 Вы заблокированы в боте", h.sender.last(other).Text)

	h.send(adminID, "/unblock "+other)
	h.send(other, "/new")
	_, ok := h.sessions.Get(other)
	assert.True(t, ok)
}

func TestClearResetsCooldown(t *testing.T) {
	h := newHarness(t)

	h.send(userID, "/new")
	h.send(userID, "/cancel")
	h.send(userID, "/new")
	assert.True(t, strings.HasPrefix(h.sender.last(userID).Text, "⏳ Подождите"))

	h.send(adminID, "/clear "+userID)
	assert.Equal(t, "🧹 Сброшено ограничений: 1", h.sender.last(adminID).Text)

	h.send(userID, "/new")
	_, ok := h.sessions.Get(userID)
	assert.True(t, ok)
}

func TestStatsExportAndBlockedList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send(adminID, "/export")
	assert.Equal(t, "❌ Нет данных для выгрузки", h.sender.last(adminID).Text)
	h.send(adminID, "/blocked")
	assert.Equal(t, "✅ Нет заблокированных пользователей", h.sender.last(adminID).Text)

	_, err := h.records.Append(ctx, domain.Submission{UserID: "1", Answers: domain.Answers{FullName: "Иванов Иван Иванович"}})
	require.NoError(t, err)
	h.send(adminID, "/block 9")

	h.send(adminID, labelStats)
	stats := h.sender.last(adminID)
	assert.True(t, stats.HTML)
	assert.Contains(t, stats.Text, "Всего заявок: 1")
	assert.Contains(t, stats.Text, "Заблокировано пользователей: 1")
	assert.Contains(t, stats.Text, "Последняя заявка")

	h.send(adminID, labelExport)
	h.sender.mu.Lock()
	docs := h.sender.docs[adminID]
	h.sender.mu.Unlock()
	require.Len(t, docs, 1)
	assert.True(t, strings.HasPrefix(docs[0].Name, "export_"))
	assert.True(t, strings.HasPrefix(string(docs[0].Content), "\ufeff"))
	assert.Contains(t, string(docs[0].Content), "Иванов Иван Иванович")

	h.send(adminID, labelBlocked)
	assert.Contains(t, h.sender.last(adminID).Text, "• ID: 9")
}

func TestBroadcast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "1"} {
		_, err := h.records.Append(ctx, domain.Submission{UserID: id})
		require.NoError(t, err)
	}

	h.send(adminID, "/broadcast")
	assert.Contains(t, h.sender.last(adminID).Text, "Использование")

	h.send(adminID, "/broadcast Приём заявок продлён")
	for _, to := range []string{"1", "2", "-1001"} {
		assert.Equal(t, "Приём заявок продлён", h.sender.last(to).Text, to)
	}
	assert.Equal(t, "📣 Рассылка: доставлено 3 из 3", h.sender.last(adminID).Text)
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.sender.panicOn = userID

	assert.NotPanics(t, func() { h.send(userID, "/help") })

	h.sender.panicOn = ""
	h.send(userID, "/help")
	assert.Equal(t, helpUser, h.sender.last(userID).Text)
}

func TestRunProcessesUpdatesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()

	texts := []string{"/new", "Иванов Иван Иванович", "12345", "2 рота", "А-123456", "кровать 3"}
	for _, text := range texts {
		require.NoError(t, h.d.Submit(ctx, msg(userID, text)))
	}
	require.NoError(t, h.d.Submit(ctx, msg("43", "/help")))

	require.Eventually(t, func() bool {
		sess, ok := h.sessions.Get(userID)
		return ok && sess.Step == flow.StepMilitaryID && h.sender.count("43") == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.ErrorIs(t, h.d.Submit(context.Background(), msg(userID, "late")), ErrStopped)
}

func TestStalledUserDoesNotDelayOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.sender.stallOn = "1"
	h.sender.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()

	require.NoError(t, h.d.Submit(ctx, msg("1", "/help")))
	require.NoError(t, h.d.Submit(ctx, msg("1", "/help")))
	for _, id := range []string{"9", "17", "25"} {
		require.NoError(t, h.d.Submit(ctx, msg(id, "/help")))
	}

	require.Eventually(t, func() bool {
		return h.sender.count("9") == 1 && h.sender.count("17") == 1 && h.sender.count("25") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.sender.count("1"))

	close(h.sender.release)
	require.Eventually(t, func() bool {
		return h.sender.count("1") == 2 && h.d.Active() == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestStopDropsStalledWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.sender.stallOn = userID
	h.sender.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()

	require.NoError(t, h.d.Submit(ctx, msg(userID, "/help")))
	require.NoError(t, h.d.Submit(ctx, msg(userID, "/help")))
	require.Eventually(t, func() bool { return h.d.Active() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Zero(t, h.sender.count(userID))
}
