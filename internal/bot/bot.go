package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"animepicker/internal/collection"
	"animepicker/internal/config"
	"animepicker/internal/fetcher"
	"animepicker/internal/generator"
	"animepicker/internal/model"
	"animepicker/internal/session"
)

// maxMessageLen is Telegram's message size limit.
const maxMessageLen = 4096

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Sessions hands out per-account sessions.
type Sessions interface {
	Get(ctx context.Context, account string) (*session.Session, error)
}

// Recommender generates recommendations and single-title info.
type Recommender interface {
	Recommend(ctx context.Context, req generator.RecommendRequest) (generator.Recommendations, error)
	Info(ctx context.Context, title string, instructions []string) (model.Item, error)
}

// Bot is the Telegram front end of the collections.
type Bot struct {
	api      telegramAPI
	cfg      *config.Config
	sessions Sessions
	gen      Recommender
	fetcher  *fetcher.Fetcher
	http     fetcher.HTTPClient
	undo     *undoLog
	now      func() time.Time
	log      *slog.Logger

	// spawn runs long requests off the update loop so /cancel can reach them.
	spawn func(func())
	wg    sync.WaitGroup
}

// New creates a Bot with the given Telegram token. gen may be nil when no generative
// provider is configured.
func New(token string, cfg *config.Config, sessions Sessions, gen Recommender, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, cfg, sessions, gen, http.DefaultClient, log), nil
}

func newBot(api telegramAPI, cfg *config.Config, sessions Sessions, gen Recommender, client fetcher.HTTPClient, log *slog.Logger) *Bot {
	b := &Bot{
		api:      api,
		cfg:      cfg,
		sessions: sessions,
		gen:      gen,
		fetcher:  fetcher.New(client),
		http:     client,
		undo:     newUndoLog(200),
		now:      time.Now,
		log:      log,
	}
	b.spawn = func(f func()) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			f()
		}()
	}
	return b
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled and running
// requests have finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !msg.IsCommand() && !isCaptionCommand(msg, cmdImport) {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// isCaptionCommand reports whether a document was sent with /cmd as its caption.
func isCaptionCommand(msg *tgbotapi.Message, cmd string) bool {
	if msg.Document == nil {
		return false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(msg.Caption), " ")
	first, _, _ = strings.Cut(first, "@")
	return first == "/"+cmd
}

// SendMessage sends a text message to the given chat, split at line boundaries when it
// exceeds the message size limit.
func (b *Bot) SendMessage(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send message", "chat_id", chatID, "error", err)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithUndo(chatID int64, text, token string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Undo", cbUndo+":"+token),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func accountFor(userID int64) string {
	return fmt.Sprintf("tg%d", userID)
}

func (b *Bot) session(ctx context.Context, chatID, userID int64) (*session.Session, bool) {
	s, err := b.sessions.Get(ctx, accountFor(userID))
	if err != nil {
		b.log.Error("open session", "user_id", userID, "error", err)
		b.reply(chatID, "Could not load your data. Try again later.")
		return nil, false
	}
	return s, true
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	if cmd == "" && isCaptionCommand(msg, cmdImport) {
		cmd = cmdImport
	}
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
		return
	case "help":
		b.handleHelp(chatID)
		return
	}

	s, ok := b.session(ctx, chatID, msg.From.ID)
	if !ok {
		return
	}
	c := &call{chatID: chatID, sess: s, store: s.Store}

	switch cmd {
	case "add":
		b.handleAdd(ctx, c, model.Library, args)
	case "watch":
		b.handleAdd(ctx, c, model.Watchlist, args)
	case "remove":
		b.handleRemove(ctx, c, args)
	case "move":
		b.handleMove(ctx, c, args)
	case "list":
		b.handleList(c, args)
	case "search":
		b.handleSearch(c, args)
	case "note":
		b.handleNote(ctx, c, args)
	case "exclude":
		b.handleExclude(ctx, c, args)
	case "restore":
		b.handleRestore(ctx, c, args)
	case "restoreall":
		b.handleRestoreAll(ctx, c)
	case "clearexcluded":
		b.handleClearExcluded(ctx, c, args)
	case "recommend":
		b.spawn(func() { b.handleRecommend(ctx, c, args) })
	case "info":
		b.spawn(func() { b.handleInfo(ctx, c, args) })
	case "cancel":
		b.handleCancel(c)
	case "instructions":
		b.handleInstructions(c)
	case "addinstruction":
		b.handleAddInstruction(ctx, c, args)
	case "rminstruction":
		b.handleRmInstruction(ctx, c, args)
	case "defaults":
		b.handleDefaults(ctx, c)
	case "settings":
		b.handleSettings(ctx, c, args)
	case "clearrecs":
		b.handleClearRecs(ctx, c, args)
	case "connect":
		b.handleConnect(ctx, c, args)
	case "disconnect":
		b.handleDisconnect(ctx, c)
	case "sync":
		b.handleSync(ctx, c)
	case "push":
		b.handlePush(ctx, c)
	case "export":
		b.handleExport(c)
	case cmdImport:
		b.handleImport(ctx, c, msg)
	case "importfeed":
		b.handleImportFeed(ctx, c, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// call carries the per-request context of a command.
type call struct {
	chatID int64
	sess   *session.Session
	store  *collection.Store
}
