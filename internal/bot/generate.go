package bot

import (
	"context"
	"errors"
	"fmt"

	"animepicker/internal/generator"
	"animepicker/internal/model"
)

func (b *Bot) generatorReady(chatID int64) bool {
	if b.gen == nil {
		b.reply(chatID, generator.ShortMessage(generator.ErrNoAPIKey))
		return false
	}
	return true
}

func (b *Bot) handleRecommend(ctx context.Context, c *call, args string) {
	if !b.generatorReady(c.chatID) {
		return
	}
	count, err := ParseCount(args, b.cfg.RecommendSize)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	st := c.store.Snapshot()
	if len(st.Library) == 0 {
		b.reply(c.chatID, generator.ShortMessage(generator.ErrEmptyLibrary))
		return
	}

	gctx, done := c.sess.BeginGeneration(ctx)
	defer done()

	b.reply(c.chatID, fmt.Sprintf("Generating %d recommendations... Use /cancel to stop.", count))
	recs, err := b.gen.Recommend(gctx, generator.RecommendRequest{
		Library:      st.Library,
		Avoid:        generator.AvoidList(st),
		Instructions: st.Instructions,
		Count:        count,
		Known:        c.store.KnownTitles(),
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.log.Error("recommend", "account", c.sess.Account, "error", err)
		}
		b.reply(c.chatID, generator.ShortMessage(err))
		return
	}

	rep, err := c.store.MergeImported(ctx, model.Recommendations, recs.Items)
	if err != nil {
		b.storeFailed(c.chatID, "save recommendations", err)
		return
	}
	b.log.Info("recommendations generated",
		"account", c.sess.Account,
		"returned", len(recs.Items),
		"dropped", recs.Dropped,
		"added", rep.Added,
	)
	b.reply(c.chatID, FormatRecommendations(recs.Items))
}

func (b *Bot) handleInfo(ctx context.Context, c *call, args string) {
	if args == "" {
		b.reply(c.chatID, "Usage: /info <title>")
		return
	}
	if !b.generatorReady(c.chatID) {
		return
	}

	gctx, done := c.sess.BeginGeneration(ctx)
	defer done()

	info, err := b.gen.Info(gctx, args, c.store.Instructions())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.log.Error("info", "account", c.sess.Account, "title", args, "error", err)
		}
		b.reply(c.chatID, generator.ShortMessage(err))
		return
	}

	if coll, it, ok := c.store.Find(args); ok {
		updated, err := c.store.UpdateItem(ctx, coll, it.ID, info)
		if err != nil {
			b.storeFailed(c.chatID, "save info", err)
			return
		}
		info = updated
	}
	b.reply(c.chatID, FormatItem(info))
}

func (b *Bot) handleCancel(c *call) {
	if !c.sess.CancelGeneration() {
		b.reply(c.chatID, "Nothing to cancel.")
		return
	}
	b.reply(c.chatID, "Cancelling...")
}
