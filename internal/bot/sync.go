package bot

import (
	"context"
	"errors"
	"fmt"

	"animepicker/internal/cloudsync"
	"animepicker/internal/config"
	"animepicker/internal/remote"
	"animepicker/internal/scheduler"
	"animepicker/internal/session"
)

// localToken is stored for the directory backend, which needs no credentials.
const localToken = "local"

// syncErrText turns a failed pass into a short hint. Local data is never lost by a
// failed pass, so the messages only point at the next step.
func syncErrText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "Cloud sync is not connected. Use /connect first."
	case errors.Is(err, remote.ErrUnauthorized):
		return "Cloud access was rejected. Reconnect with /connect <token>."
	case errors.Is(err, scheduler.ErrSyncInProgress):
		return "A sync is already running."
	case errors.Is(err, context.DeadlineExceeded):
		return "The cloud store did not answer in time. Try /sync later."
	}
	return "Sync failed. Your data here is unchanged, try /sync later."
}

func (b *Bot) handleConnect(ctx context.Context, c *call, args string) {
	token := args
	if token == "" {
		if b.cfg.SyncBackend != config.SyncBackendDir {
			b.reply(c.chatID, "Usage: /connect <token>")
			return
		}
		token = localToken
	}

	res, err := c.sess.Connect(ctx, token)
	if err != nil {
		b.log.Warn("connect", "account", c.sess.Account, "error", err)
		b.reply(c.chatID, syncErrText(err))
		return
	}
	b.reply(c.chatID, "Cloud sync connected.\n"+FormatSyncResult(res))
}

func (b *Bot) handleDisconnect(ctx context.Context, c *call) {
	if !c.sess.Connected(ctx) {
		b.reply(c.chatID, "Cloud sync is already off.")
		return
	}
	if err := c.sess.Disconnect(ctx); err != nil {
		b.log.Error("disconnect", "account", c.sess.Account, "error", err)
		b.reply(c.chatID, "Failed to disconnect, try again.")
		return
	}
	b.reply(c.chatID, "Cloud sync disconnected. Your data here is kept.")
}

func (b *Bot) handleSync(ctx context.Context, c *call) {
	res, err := c.sess.Sync(ctx)
	if err != nil {
		b.reply(c.chatID, syncErrText(err))
		return
	}
	b.reply(c.chatID, FormatSyncResult(res))
}

func (b *Bot) handlePush(ctx context.Context, c *call) {
	res, err := c.sess.Push(ctx)
	if err != nil {
		b.reply(c.chatID, syncErrText(err))
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Cloud copy replaced with your data (%s).", fieldNames(res.FromLocal)))
}

// Notifier returns the pass notifier of account. Passes started by a command are
// answered by the command itself; background passes report failures and pulled changes.
func (b *Bot) Notifier(account string) scheduler.Notifier {
	var userID int64
	if _, err := fmt.Sscanf(account, "tg%d", &userID); err != nil {
		return nil
	}
	return &syncNotifier{b: b, chatID: userID}
}

type syncNotifier struct {
	b      *Bot
	chatID int64
}

func (n *syncNotifier) SyncFinished(trigger scheduler.Trigger, res cloudsync.Result, err error) {
	switch trigger {
	case scheduler.TriggerManual, scheduler.TriggerPush:
		return
	}
	if err != nil {
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			return
		}
		n.b.log.Warn("background sync failed", "chat_id", n.chatID, "trigger", trigger, "error", err)
		n.b.SendMessage(n.chatID, syncErrText(err))
		return
	}
	if len(res.FromRemote) > 0 {
		n.b.SendMessage(n.chatID, "Updated from cloud: "+fieldNames(res.FromRemote))
	}
}
