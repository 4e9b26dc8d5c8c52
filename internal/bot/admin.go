package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/store"
	"github.com/ashureev/intake-bot/internal/transport"
)

// ErrAdminTarget is returned when an admin tries to block another admin.
var ErrAdminTarget = errors.New("cannot block an administrator")

// ErrInvalidUserID is returned for a malformed block target.
var ErrInvalidUserID = errors.New("invalid user id")

const timeLayout = "02.01.2006 15:04"

// pendingAction is an admin menu action waiting for a user ID.
type pendingAction int

const (
	pendingBlock pendingAction = iota + 1
	pendingUnblock
)

func (d *Dispatcher) setPending(adminID string, a pendingAction) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending[adminID] = a
}

func (d *Dispatcher) takePending(adminID string) (pendingAction, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	a, ok := d.pending[adminID]
	delete(d.pending, adminID)
	return a, ok
}

func (d *Dispatcher) clearPending(adminID string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	delete(d.pending, adminID)
}

func (d *Dispatcher) completePending(ctx context.Context, upd transport.Update, action pendingAction, text string) {
	if !identity.IsValidUserID(text) {
		d.setPending(upd.User.ID, action)
		d.reply(ctx, upd, transport.Message{Text: "❌ Неверный формат ID. Введите число:"})
		return
	}
	switch action {
	case pendingBlock:
		d.blockReply(ctx, upd, text)
	case pendingUnblock:
		d.unblockReply(ctx, upd, text)
	}
}

// Block adds target to the block list on behalf of adminID.
func (d *Dispatcher) Block(ctx context.Context, adminID, target string) (domain.BlockEntry, error) {
	if !identity.IsValidUserID(target) {
		return domain.BlockEntry{}, ErrInvalidUserID
	}
	if d.admins.Contains(target) {
		return domain.BlockEntry{}, ErrAdminTarget
	}
	entry, err := d.blocks.Block(ctx, target, adminID)
	if err != nil {
		return domain.BlockEntry{}, err
	}
	d.logger.Info("User blocked", "user_id", target, "admin_id", adminID)
	return entry, nil
}

// Unblock removes target from the block list.
func (d *Dispatcher) Unblock(ctx context.Context, adminID, target string) error {
	if !identity.IsValidUserID(target) {
		return ErrInvalidUserID
	}
	if err := d.blocks.Unblock(ctx, target); err != nil {
		return err
	}
	d.logger.Info("User unblocked", "user_id", target, "admin_id", adminID)
	return nil
}

func (d *Dispatcher) blockReply(ctx context.Context, upd transport.Update, target string) {
	_, err := d.Block(ctx, upd.User.ID, target)
	var text string
	switch {
	case err == nil:
		text = fmt.Sprintf("✅ Пользователь %s заблокирован", target)
	case errors.Is(err, ErrAdminTarget):
		text = "❌ Нельзя заблокировать администратора!"
	case errors.Is(err, ErrInvalidUserID):
		text = "❌ Неверный формат ID"
	case errors.Is(err, store.ErrAlreadyBlocked):
		text = fmt.Sprintf("ℹ️ Пользователь %s уже заблокирован", target)
	default:
		d.logger.Error("Failed to block user", "user_id", target, "error", err)
		text = "❌ Не удалось сохранить список блокировок"
	}
	d.reply(ctx, upd, transport.Message{Text: text, Buttons: adminMenu()})
}

func (d *Dispatcher) unblockReply(ctx context.Context, upd transport.Update, target string) {
	err := d.Unblock(ctx, upd.User.ID, target)
	var text string
	switch {
	case err == nil:
		text = fmt.Sprintf("✅ Пользователь %s разблокирован", target)
	case errors.Is(err, ErrInvalidUserID):
		text = "❌ Неверный формат ID"
	case errors.Is(err, store.ErrNotBlocked):
		text = fmt.Sprintf("❌ Пользователь %s не был заблокирован", target)
	default:
		d.logger.Error("Failed to unblock user", "user_id", target, "error", err)
		text = "❌ Не удалось сохранить список блокировок"
	}
	d.reply(ctx, upd, transport.Message{Text: text, Buttons: adminMenu()})
}

func (d *Dispatcher) cmdBlock(ctx context.Context, upd transport.Update, arg string) {
	if arg == "" {
		d.setPending(upd.User.ID, pendingBlock)
		d.reply(ctx, upd, transport.Message{Text: "Введите ID пользователя для блокировки:", RemoveKeyboard: true})
		return
	}
	d.blockReply(ctx, upd, arg)
}

func (d *Dispatcher) cmdUnblock(ctx context.Context, upd transport.Update, arg string) {
	if arg == "" {
		d.setPending(upd.User.ID, pendingUnblock)
		d.reply(ctx, upd, transport.Message{Text: "Введите ID пользователя для разблокировки:", RemoveKeyboard: true})
		return
	}
	d.unblockReply(ctx, upd, arg)
}

func (d *Dispatcher) cmdBlocked(ctx context.Context, upd transport.Update, _ string) {
	entries := d.blocks.List()
	if len(entries) == 0 {
		d.reply(ctx, upd, transport.Message{Text: "✅ Нет заблокированных пользователей"})
		return
	}
	var b strings.Builder
	b.WriteString("🚫 <b>Заблокированные пользователи:</b>\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• ID: %s\n  Заблокирован: %s\n\n",
			html.EscapeString(e.UserID), e.BlockedAt.Local().Format(timeLayout))
	}
	d.reply(ctx, upd, transport.Message{Text: b.String(), HTML: true})
}

func (d *Dispatcher) cmdStats(ctx context.Context, upd transport.Update, _ string) {
	total, err := d.records.Count(ctx)
	if err != nil {
		d.logger.Error("Failed to count submissions", "error", err)
		d.reply(ctx, upd, transport.Message{Text: "❌ Не удалось прочитать данные"})
		return
	}
	latest, hasLatest, err := d.records.Latest(ctx)
	if err != nil {
		d.logger.Warn("Failed to read latest submission", "error", err)
	}

	var b strings.Builder
	b.WriteString("📊 <b>Статистика бота</b>\n\n")
	fmt.Fprintf(&b, "📝 Всего заявок: %d\n", total)
	if hasLatest {
		fmt.Fprintf(&b, "🕒 Последняя заявка: %s\n", latest.Local().Format(timeLayout))
	}
	fmt.Fprintf(&b, "🚫 Заблокировано пользователей: %d\n", len(d.blocks.List()))
	fmt.Fprintf(&b, "💬 Активных анкет: %d", d.sessions.Len())
	d.reply(ctx, upd, transport.Message{Text: b.String(), HTML: true})
}

func (d *Dispatcher) cmdExport(ctx context.Context, upd transport.Update, _ string) {
	subs, err := d.records.All(ctx)
	if err != nil {
		d.logger.Error("Failed to read submissions for export", "error", err)
		d.reply(ctx, upd, transport.Message{Text: fmt.Sprintf("❌ Ошибка экспорта: %v", err)})
		return
	}
	if len(subs) == 0 {
		d.reply(ctx, upd, transport.Message{Text: "❌ Нет данных для выгрузки"})
		return
	}

	var buf bytes.Buffer
	if err := store.WriteCSV(&buf, subs); err != nil {
		d.logger.Error("Failed to render export", "error", err)
		d.reply(ctx, upd, transport.Message{Text: fmt.Sprintf("❌ Ошибка экспорта: %v", err)})
		return
	}
	doc := transport.Document{
		Name:    store.ExportFileName(d.now()),
		Content: buf.Bytes(),
		Caption: "📥 Выгрузка данных",
	}
	if err := d.sender.SendDocument(ctx, upd.ReplyTo(), doc); err != nil {
		d.logger.Error("Failed to send export", "user_id", upd.User.ID, "error", err)
		d.reply(ctx, upd, transport.Message{Text: fmt.Sprintf("❌ Ошибка экспорта: %v", err)})
		return
	}
	d.logger.Info("Export sent", "user_id", upd.User.ID, "records", len(subs))
}

func (d *Dispatcher) cmdClear(ctx context.Context, upd transport.Update, arg string) {
	n := d.gate.Reset(arg)
	d.logger.Info("Cooldowns reset", "admin_id", upd.User.ID, "target", arg, "removed", n)
	d.reply(ctx, upd, transport.Message{Text: fmt.Sprintf("🧹 Сброшено ограничений: %d", n)})
}

func (d *Dispatcher) cmdBroadcast(ctx context.Context, upd transport.Update, arg string) {
	if arg == "" {
		d.reply(ctx, upd, transport.Message{Text: "Использование: /broadcast <текст>"})
		return
	}
	ids, err := d.records.UserIDs(ctx)
	if err != nil {
		d.logger.Error("Failed to list broadcast recipients", "error", err)
		d.reply(ctx, upd, transport.Message{Text: "❌ Не удалось прочитать данные"})
		return
	}
	if d.broadcast != "" {
		ids = append(ids, d.broadcast)
	}
	res := d.delivery.Deliver(ctx, transport.Message{Text: arg}, ids)
	d.logger.Info("Broadcast sent", "admin_id", upd.User.ID, "delivered", res.Delivered, "recipients", res.Attempted)
	d.reply(ctx, upd, transport.Message{Text: fmt.Sprintf("📣 Рассылка: доставлено %d из %d", res.Delivered, res.Attempted)})
}
