package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"animepicker/internal/collection"
)

const (
	cbUndo    = "undo"
	cmdImport = "import"
)

// undoAction reverts one change and returns the confirmation text.
type undoAction func(ctx context.Context, s *collection.Store) (string, error)

type undoEntry struct {
	account string
	do      undoAction
}

// undoLog keeps the most recent reversible changes, keyed by the token carried in the
// callback data of their Undo button.
type undoLog struct {
	mu      sync.Mutex
	max     int
	seq     int
	entries map[string]undoEntry
	order   []string
}

func newUndoLog(max int) *undoLog {
	return &undoLog{max: max, entries: make(map[string]undoEntry)}
}

func (u *undoLog) push(account string, do undoAction) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.seq++
	token := strconv.Itoa(u.seq)
	u.entries[token] = undoEntry{account: account, do: do}
	u.order = append(u.order, token)
	for len(u.order) > u.max {
		delete(u.entries, u.order[0])
		u.order = u.order[1:]
	}
	return token
}

// take removes and returns the action for token if it belongs to account.
func (u *undoLog) take(token, account string) (undoAction, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	e, ok := u.entries[token]
	if !ok || e.account != account {
		return nil, false
	}
	delete(u.entries, token)
	return e.do, true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, token, ok := strings.Cut(cb.Data, ":")
	if !ok || action != cbUndo {
		return
	}

	b.log.Info("callback",
		"action", action,
		"token", token,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	do, ok := b.undo.take(token, accountFor(cb.From.ID))
	if !ok {
		b.reply(chatID, "Nothing to undo.")
		return
	}
	s, ok := b.session(ctx, chatID, cb.From.ID)
	if !ok {
		return
	}
	text, err := do(ctx, s.Store)
	if err != nil {
		b.log.Error("undo", "error", err)
		b.reply(chatID, "Could not undo: "+errText(err))
		return
	}
	b.reply(chatID, text)
}
