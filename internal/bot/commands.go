package bot

import (
	"context"
	"strings"
	"unicode"

	"github.com/ashureev/intake-bot/internal/transport"
)

type command struct {
	admin bool
	run   func(d *Dispatcher, ctx context.Context, upd transport.Update, arg string)
}

var commands = map[string]command{
	"start":     {run: (*Dispatcher).cmdStart},
	"new":       {run: (*Dispatcher).cmdNew},
	"cancel":    {run: (*Dispatcher).cmdCancel},
	"help":      {run: (*Dispatcher).cmdHelp},
	"stats":     {admin: true, run: (*Dispatcher).cmdStats},
	"export":    {admin: true, run: (*Dispatcher).cmdExport},
	"block":     {admin: true, run: (*Dispatcher).cmdBlock},
	"unblock":   {admin: true, run: (*Dispatcher).cmdUnblock},
	"blocked":   {admin: true, run: (*Dispatcher).cmdBlocked},
	"clear":     {admin: true, run: (*Dispatcher).cmdClear},
	"broadcast": {admin: true, run: (*Dispatcher).cmdBroadcast},
}

// adminButtons maps admin menu labels to commands.
var adminButtons = map[string]string{
	labelStats:   "stats",
	labelExport:  "export",
	labelBlock:   "block",
	labelUnblock: "unblock",
	labelBlocked: "blocked",
}

// parseCommand splits "/name@bot args" into a lower-cased name and the
// trimmed remainder.
func parseCommand(text string) (name, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (d *Dispatcher) runCommand(ctx context.Context, upd transport.Update, name, arg string, isAdmin bool) {
	cmd, ok := commands[name]
	if !ok {
		d.reply(ctx, upd, transport.Message{Text: helpText(isAdmin)})
		return
	}
	if cmd.admin && !isAdmin {
		d.logger.Debug("Ignoring privileged command", "user_id", upd.User.ID, "command", name)
		return
	}
	d.logger.Info("Command", "user_id", upd.User.ID, "command", name)
	cmd.run(d, ctx, upd, arg)
}

func (d *Dispatcher) cmdStart(ctx context.Context, upd transport.Update, _ string) {
	if d.engine.Discard(upd.User.ID) {
		d.logger.Info("Conversation discarded by /start", "user_id", upd.User.ID)
	}
	d.reply(ctx, upd, welcome(d.admins.Contains(upd.User.ID)))
}

func (d *Dispatcher) cmdNew(ctx context.Context, upd transport.Update, _ string) {
	d.logOutcome(upd, "start")(d.engine.Start(ctx, upd))
}

func (d *Dispatcher) cmdCancel(ctx context.Context, upd transport.Update, _ string) {
	d.logOutcome(upd, "cancel")(d.engine.Cancel(ctx, upd))
}

func (d *Dispatcher) cmdHelp(ctx context.Context, upd transport.Update, _ string) {
	d.reply(ctx, upd, transport.Message{Text: helpText(d.admins.Contains(upd.User.ID))})
}
