package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"animepicker/internal/fetcher"
	"animepicker/internal/transfer"
)

// maxImportSize bounds downloaded import documents.
const maxImportSize = 5 * 1024 * 1024

func (b *Bot) handleExport(c *call) {
	now := b.now()
	data, err := transfer.Export(c.store.Snapshot(), now)
	if err != nil {
		b.log.Error("export", "chat_id", c.chatID, "error", err)
		b.reply(c.chatID, "Export failed, try again.")
		return
	}
	doc := tgbotapi.NewDocument(c.chatID, tgbotapi.FileBytes{Name: transfer.FileName(now), Bytes: data})
	doc.Caption = "Your Anime Picker data. Send it back with the caption /import to restore it."
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error("send export", "chat_id", c.chatID, "error", err)
	}
}

// importDocument returns the document attached to msg or to the message it replies to.
func importDocument(msg *tgbotapi.Message) *tgbotapi.Document {
	if msg.Document != nil {
		return msg.Document
	}
	if msg.ReplyToMessage != nil {
		return msg.ReplyToMessage.Document
	}
	return nil
}

func (b *Bot) handleImport(ctx context.Context, c *call, msg *tgbotapi.Message) {
	doc := importDocument(msg)
	if doc == nil {
		b.reply(c.chatID, "Send an export file with the caption /import, or reply /import to one.")
		return
	}
	if doc.FileSize > maxImportSize {
		b.reply(c.chatID, "The file is too large to import.")
		return
	}

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.log.Error("download import", "chat_id", c.chatID, "error", err)
		b.reply(c.chatID, "Could not download the file, try again.")
		return
	}
	payload, err := transfer.Decode(data)
	if err != nil {
		if errors.Is(err, transfer.ErrUnknownFormat) {
			b.reply(c.chatID, "This file does not look like an Anime Picker export.")
			return
		}
		b.reply(c.chatID, "Could not read the file: it is not valid JSON.")
		return
	}
	rep, err := transfer.Apply(ctx, c.store, payload)
	if err != nil {
		b.storeFailed(c.chatID, "import", err)
		return
	}
	b.log.Info("import applied", "account", c.sess.Account, "added", rep.Added(), "updated", rep.Updated())
	b.reply(c.chatID, FormatImportReport(rep))
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImportSize))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *Bot) handleImportFeed(ctx context.Context, c *call, args string) {
	url, coll, err := ParseFeedArgs(args)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	feed, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.log.Warn("fetch feed", "url", url, "error", err)
		b.reply(c.chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}
	items := fetcher.Items(feed)
	if len(items) == 0 {
		b.reply(c.chatID, "The feed has no titles.")
		return
	}
	rep, err := c.store.MergeImported(ctx, coll, items)
	if err != nil {
		b.storeFailed(c.chatID, "import feed", err)
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Imported from feed into %s: %d added, %d skipped.",
		strings.ToLower(coll.Label()), rep.Added, rep.Skipped))
}
