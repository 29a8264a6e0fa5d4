package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"animepicker/internal/collection"
	"animepicker/internal/model"
	"animepicker/internal/search"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Anime Picker!

Keep a library of anime you liked, a watchlist, and get recommendations based on them.

Quick start:
1. /add <title> - add an anime you liked to your library
2. /recommend - get new picks based on your library
3. /watch <title> - keep a pick for later

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Collections (lib, watch, recs):
/add <title> - add to library
/watch <title> - add to watchlist
/remove <collection> <title> - remove an entry
/move <from> <to> <title> - move an entry
/list [lib|watch|recs|excluded] - show a collection
/search <query> - search all collections
/note <title> | <text> - set a note

Exclusions:
/exclude <title> [| reason] - hide a title everywhere
/restore <n|title> - put an excluded title back
/restoreall - restore every excluded title
/clearexcluded [n|title] - forget excluded titles

Recommendations:
/recommend [count] - generate new picks
/info <title> - generate details for a title
/cancel - stop a running generation
/clearrecs [added|all] - clear recommendations
/instructions - show generator instructions
/addinstruction <text> - add an instruction
/rminstruction <n> - remove an instruction
/defaults - restore the default instructions

Data:
/settings [blur|motion] - show or toggle settings
/connect [token] - turn on cloud sync
/disconnect - turn off cloud sync
/sync - sync now
/push - overwrite the cloud copy with this one
/export - download your data
/import - send an export file with this caption
/importfeed <url> [lib|watch|recs] - import titles from an RSS list

Search syntax: words must all match, -word excludes, "a phrase", /regex/, title:word, desc:word`)
}

// errText maps store errors to short user-facing messages.
func errText(err error) string {
	switch {
	case errors.Is(err, collection.ErrEmptyTitle):
		return "title is empty."
	case errors.Is(err, collection.ErrNotFound):
		return "not found."
	case errors.Is(err, collection.ErrDuplicate):
		return "the title is already there."
	case errors.Is(err, collection.ErrSameSource):
		return "source and destination are the same."
	}
	return "something went wrong, try again."
}

func (b *Bot) storeFailed(chatID int64, op string, err error) {
	b.log.Error(op, "chat_id", chatID, "error", err)
	b.reply(chatID, fmt.Sprintf("Failed to %s: %s", op, errText(err)))
}

func (b *Bot) handleAdd(ctx context.Context, c *call, to model.Collection, args string) {
	if args == "" {
		if to == model.Watchlist {
			b.reply(c.chatID, "Usage: /watch <title>")
		} else {
			b.reply(c.chatID, "Usage: /add <title>")
		}
		return
	}
	if c.store.IsExcluded(args) {
		b.reply(c.chatID, fmt.Sprintf("%q is excluded. Use /restore to bring it back first.", args))
		return
	}

	item := model.NewItem(args)
	// A recommendation being kept carries its generated info along.
	if from, found, ok := c.store.Find(args); ok && from == model.Recommendations && to != from {
		res, err := c.store.Move(ctx, from, to, found.ID, "")
		if err != nil {
			b.storeFailed(c.chatID, "add", err)
			return
		}
		token := b.undo.push(c.sess.Account, func(ctx context.Context, s *collection.Store) (string, error) {
			if _, err := s.Move(ctx, to, from, res.Item.ID, ""); err != nil {
				return "", err
			}
			return fmt.Sprintf("%q is back in %s.", res.Item.Title, strings.ToLower(from.Label())), nil
		})
		b.replyWithUndo(c.chatID, fmt.Sprintf("Moved %q from recommendations to %s.", res.Item.Title, strings.ToLower(to.Label())), token)
		return
	}

	res, err := c.store.Add(ctx, to, item)
	if err != nil {
		b.storeFailed(c.chatID, "add", err)
		return
	}
	if !res.Added {
		b.reply(c.chatID, fmt.Sprintf("%q is already in your %s.", res.Item.Title, strings.ToLower(res.In.Label())))
		return
	}
	token := b.undo.push(c.sess.Account, func(ctx context.Context, s *collection.Store) (string, error) {
		if _, ok, err := s.Remove(ctx, to, res.Item.ID, ""); err != nil {
			return "", err
		} else if !ok {
			return "", collection.ErrNotFound
		}
		return fmt.Sprintf("Removed %q.", res.Item.Title), nil
	})
	b.replyWithUndo(c.chatID, fmt.Sprintf("Added %q to %s.", res.Item.Title, strings.ToLower(to.Label())), token)
}

func (b *Bot) handleRemove(ctx context.Context, c *call, args string) {
	from, title, err := ParseCollectionArgs(args)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v\nUsage: /remove <lib|watch|recs> <title>", err))
		return
	}
	removed, ok, err := c.store.Remove(ctx, from, "", title)
	if err != nil {
		b.storeFailed(c.chatID, "remove", err)
		return
	}
	if !ok {
		b.reply(c.chatID, fmt.Sprintf("%q is not in your %s.", title, strings.ToLower(from.Label())))
		return
	}
	token := b.undo.push(c.sess.Account, func(ctx context.Context, s *collection.Store) (string, error) {
		res, err := s.Add(ctx, from, removed)
		if err != nil {
			return "", err
		}
		if !res.Added {
			return fmt.Sprintf("%q is already in your %s.", res.Item.Title, strings.ToLower(res.In.Label())), nil
		}
		return fmt.Sprintf("%q is back in %s.", removed.Title, strings.ToLower(from.Label())), nil
	})
	b.replyWithUndo(c.chatID, fmt.Sprintf("Removed %q from %s.", removed.Title, strings.ToLower(from.Label())), token)
}

func (b *Bot) handleMove(ctx context.Context, c *call, args string) {
	from, to, title, err := ParseMoveArgs(args)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	res, err := c.store.Move(ctx, from, to, "", title)
	if err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			b.reply(c.chatID, fmt.Sprintf("%q is not in your %s.", title, strings.ToLower(from.Label())))
			return
		}
		b.storeFailed(c.chatID, "move", err)
		return
	}
	token := b.undo.push(c.sess.Account, func(ctx context.Context, s *collection.Store) (string, error) {
		if _, err := s.Move(ctx, to, from, res.Item.ID, ""); err != nil {
			return "", err
		}
		return fmt.Sprintf("%q is back in %s.", res.Item.Title, strings.ToLower(from.Label())), nil
	})
	b.replyWithUndo(c.chatID, fmt.Sprintf("Moved %q from %s to %s.", res.Item.Title,
		strings.ToLower(from.Label()), strings.ToLower(to.Label())), token)
}

func (b *Bot) handleList(c *call, args string) {
	arg := strings.ToLower(strings.TrimSpace(args))
	if arg == "excluded" || arg == "ex" {
		b.reply(c.chatID, FormatExcluded(c.store.Excluded()))
		return
	}
	coll := model.Library
	if arg != "" {
		var err error
		if coll, err = model.ParseCollection(arg); err != nil {
			b.reply(c.chatID, "Usage: /list [lib|watch|recs|excluded]")
			return
		}
	}
	b.reply(c.chatID, FormatList(coll, c.store.Visible(coll)))
}

func (b *Bot) handleSearch(c *call, args string) {
	terms, err := search.Parse(args)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			b.reply(c.chatID, "Usage: /search <query>")
			return
		}
		b.reply(c.chatID, fmt.Sprintf("Invalid query: %v", err))
		return
	}
	b.reply(c.chatID, FormatHits(args, search.Run(c.store.Snapshot(), terms)))
}

func (b *Bot) handleNote(ctx context.Context, c *call, args string) {
	title, note, ok := strings.Cut(args, "|")
	title = strings.TrimSpace(title)
	if !ok || title == "" {
		b.reply(c.chatID, "Usage: /note <title> | <text>\nAn empty text clears the note.")
		return
	}
	coll, it, found := c.store.Find(title)
	if !found {
		b.reply(c.chatID, fmt.Sprintf("%q is not in any collection.", title))
		return
	}
	updated, err := c.store.SetNote(ctx, coll, it.ID, "", note)
	if err != nil {
		b.storeFailed(c.chatID, "save note", err)
		return
	}
	if updated.Note == "" {
		b.reply(c.chatID, fmt.Sprintf("Note cleared for %q.", updated.Title))
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Note saved for %q.", updated.Title))
}

func (b *Bot) handleExclude(ctx context.Context, c *call, args string) {
	title, reason := SplitPipe(args)
	if title == "" {
		b.reply(c.chatID, "Usage: /exclude <title> [| reason]")
		return
	}
	item := model.NewItem(title)
	if _, found, ok := c.store.Find(title); ok {
		item = found
	}
	ex, ok, err := c.store.Exclude(ctx, item, reason)
	if err != nil {
		b.storeFailed(c.chatID, "exclude", err)
		return
	}
	if !ok {
		b.reply(c.chatID, fmt.Sprintf("%q is already excluded.", ex.Title))
		return
	}
	token := b.undo.push(c.sess.Account, func(ctx context.Context, s *collection.Store) (string, error) {
		if _, _, err := s.Restore(ctx, ex.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Restored %q to %s.", ex.Title, strings.ToLower(ex.Source.Label())), nil
	})
	b.replyWithUndo(c.chatID, fmt.Sprintf("Excluded %q. It will not be recommended again.", ex.Title), token)
}

func (b *Bot) handleRestore(ctx context.Context, c *call, args string) {
	if args == "" {
		b.reply(c.chatID, "Usage: /restore <n|title>\nSee /list excluded for numbers.")
		return
	}
	target, ok := resolveExcluded(c.store.Excluded(), args)
	if !ok {
		b.reply(c.chatID, fmt.Sprintf("No excluded entry %q.", args))
		return
	}
	ex, readded, err := c.store.Restore(ctx, target.ID)
	if err != nil {
		b.storeFailed(c.chatID, "restore", err)
		return
	}
	if !readded {
		b.reply(c.chatID, fmt.Sprintf("%q is no longer excluded. It was already in your %s.", ex.Title, strings.ToLower(ex.Source.Label())))
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Restored %q to %s.", ex.Title, strings.ToLower(ex.Source.Label())))
}

func (b *Bot) handleRestoreAll(ctx context.Context, c *call) {
	total := len(c.store.Excluded())
	if total == 0 {
		b.reply(c.chatID, "No excluded titles.")
		return
	}
	n, err := c.store.RestoreAll(ctx)
	if err != nil {
		b.storeFailed(c.chatID, "restore", err)
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Restored %d of %d excluded titles.", n, total))
}

func (b *Bot) handleClearExcluded(ctx context.Context, c *call, args string) {
	if args == "" {
		n, err := c.store.ClearAllExcluded(ctx)
		if err != nil {
			b.storeFailed(c.chatID, "clear excluded titles", err)
			return
		}
		b.reply(c.chatID, fmt.Sprintf("Forgot %d excluded titles.", n))
		return
	}
	target, ok := resolveExcluded(c.store.Excluded(), args)
	if !ok {
		b.reply(c.chatID, fmt.Sprintf("No excluded entry %q.", args))
		return
	}
	ex, err := c.store.ClearExcluded(ctx, target.ID)
	if err != nil {
		b.storeFailed(c.chatID, "clear excluded title", err)
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Forgot %q. It may be recommended again.", ex.Title))
}

func (b *Bot) handleInstructions(c *call) {
	b.reply(c.chatID, FormatInstructions(c.store.Instructions()))
}

func (b *Bot) handleAddInstruction(ctx context.Context, c *call, args string) {
	if args == "" {
		b.reply(c.chatID, fmt.Sprintf("Usage: /addinstruction <text>\nStart with %s to apply it to /info too.", model.AlwaysTag))
		return
	}
	added, err := c.store.AddInstruction(ctx, args)
	if err != nil {
		b.storeFailed(c.chatID, "add instruction", err)
		return
	}
	if !added {
		b.reply(c.chatID, "That instruction already exists.")
		return
	}
	b.reply(c.chatID, "Instruction added.")
}

func (b *Bot) handleRmInstruction(ctx context.Context, c *call, args string) {
	i, err := ParsePosition(args, len(c.store.Instructions()))
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v\nUsage: /rminstruction <n>", err))
		return
	}
	removed, err := c.store.RemoveInstruction(ctx, i)
	if err != nil {
		b.storeFailed(c.chatID, "remove instruction", err)
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Removed: %s", removed))
}

func (b *Bot) handleDefaults(ctx context.Context, c *call) {
	changed, err := c.store.RestoreDefaultInstructions(ctx)
	if err != nil {
		b.storeFailed(c.chatID, "restore default instructions", err)
		return
	}
	if !changed {
		b.reply(c.chatID, "Default instructions are already in place.")
		return
	}
	b.reply(c.chatID, "Default instructions restored.")
}

func (b *Bot) handleSettings(ctx context.Context, c *call, args string) {
	if args == "" {
		b.reply(c.chatID, FormatSettings(c.store.Settings()))
		return
	}
	ps, err := c.store.ToggleSetting(ctx, args)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(c.chatID, FormatSettings(ps))
}

func (b *Bot) handleClearRecs(ctx context.Context, c *call, args string) {
	mode, err := ParseClearMode(args)
	if err != nil {
		b.reply(c.chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	n, err := c.store.ClearRecommendations(ctx, mode)
	if err != nil {
		b.storeFailed(c.chatID, "clear recommendations", err)
		return
	}
	if mode == collection.ClearAdded {
		b.reply(c.chatID, fmt.Sprintf("Removed %d recommendations already in your library or watchlist.", n))
		return
	}
	b.reply(c.chatID, fmt.Sprintf("Removed %d recommendations.", n))
}
