// Package telegram is the chat front end: screenshots in, reviewed roster
// updates out.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	bot      Bot
	sessions *scan.Sessions
	svc      *scan.Service
	engines  *ocr.Manager
	store    roster.Store
	log      *slog.Logger

	batches *batcher
	reviews *reviews
	// fetch downloads a file by its direct URL.
	fetch func(ctx context.Context, url string) ([]byte, error)
}

// NewRouter wires the bot to the scan workflow. store may be nil, which
// disables /sheet, /save and /growth.
func NewRouter(bot Bot, sessions *scan.Sessions, svc *scan.Service, engines *ocr.Manager, store roster.Store, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		bot:      bot,
		sessions: sessions,
		svc:      svc,
		engines:  engines,
		store:    store,
		log:      log,
		reviews:  newReviews(),
		fetch:    download,
	}
	r.batches = newBatcher(debounce, func(chatID int64, images []ocr.Image) {
		r.scanImages(context.Background(), chatID, images)
	})
	return r
}

func (r *Router) session(chatID int64) *scan.Session {
	s, created := r.sessions.GetOrCreate(strconv.FormatInt(chatID, 10))
	if created {
		r.log.Info("session started", "chat", chatID, "session", s.ID)
	}
	return s
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	switch {
	case msg.IsCommand():
		r.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		r.acceptPhoto(ctx, msg)
	}
}

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	sess := r.session(cid)

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText+"\n\ncolumns: "+strings.Join(sess.Roster.Columns(), ", ")+"\ncurrent: "+sess.Column())
	case "column":
		if args == "" {
			r.send(cid, "column: "+sess.Column()+"\navailable: "+strings.Join(sess.Roster.Columns(), ", "))
			return
		}
		if err := sess.SetColumn(args); err != nil {
			r.sendErr(cid, err)
			return
		}
		r.send(cid, "✅ column: "+sess.Column())
	case "guild":
		sess.SetGuild(args)
		if args == "" {
			r.send(cid, "guild name cleared")
			return
		}
		r.send(cid, "✅ guild: "+args)
	case "sheet":
		if r.store == nil {
			r.send(cid, "no roster store configured")
			return
		}
		if args == "" {
			r.send(cid, "sheet: "+sess.Sheet())
			return
		}
		if err := sess.LoadSheet(ctx, r.store, args); err != nil {
			r.sendErr(cid, err)
			return
		}
		r.reviews.drop(cid)
		r.send(cid, fmt.Sprintf("✅ sheet %s: %d members", args, sess.Roster.Len()))
	case "sheets":
		r.listSheets(ctx, cid)
	case "save":
		if r.store == nil {
			r.send(cid, "no roster store configured")
			return
		}
		if err := sess.SaveSheet(ctx, r.store); err != nil {
			r.sendErr(cid, err)
			return
		}
		r.send(cid, "💾 saved "+sess.Sheet())
	case "roster":
		ents := sess.Roster.Entities()
		if args != "" {
			ents = sess.Roster.Filter(args)
		}
		r.send(cid, formatMembers(sess.Roster.Columns(), ents))
	case "zero":
		r.send(cid, formatMembers(sess.Roster.Columns(), sess.Roster.WithZeros()))
	case "growth":
		r.growth(ctx, cid, sess, args)
	case "engine":
		r.engine(cid, args)
	case "pending":
		r.showPending(cid, sess)
	case "discard":
		sess.Ledger.Discard()
		r.reviews.drop(cid)
		r.send(cid, "🗑 pending names dropped")
	case "new", "map":
		r.manualChoice(cid, msg.Command(), args)
	case "apply":
		r.apply(cid, sess, 0)
	default:
		r.send(cid, "unknown command, see /help")
	}
}

func (r *Router) listSheets(ctx context.Context, cid int64) {
	l, ok := r.store.(roster.Lister)
	if !ok {
		r.send(cid, "this roster store cannot list sheets")
		return
	}
	names, err := l.Sheets(ctx)
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	if len(names) == 0 {
		r.send(cid, "no sheets yet")
		return
	}
	r.send(cid, "sheets:\n"+strings.Join(names, "\n"))
}

func (r *Router) growth(ctx context.Context, cid int64, sess *scan.Session, prevName string) {
	if r.store == nil {
		r.send(cid, "no roster store configured")
		return
	}
	if prevName == "" {
		r.send(cid, "usage: /growth <previous sheet>")
		return
	}
	prev, err := r.store.Load(ctx, prevName)
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	r.send(cid, formatGrowth(roster.Growth(sess.Roster, prev)))
}

func (r *Router) engine(cid int64, name string) {
	if name == "" {
		r.send(cid, "engine: "+r.engines.Get(cid).Name()+"\navailable: "+strings.Join(r.engines.Names(), ", "))
		return
	}
	if err := r.engines.Set(cid, name); err != nil {
		r.sendErr(cid, err)
		return
	}
	r.send(cid, "✅ engine: "+r.engines.Get(cid).Name())
}

// manualChoice handles "/new 2 Name" and "/map 2 Name".
func (r *Router) manualChoice(cid int64, cmd, args string) {
	num, name, _ := strings.Cut(args, " ")
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 1 {
		r.send(cid, "usage: /"+cmd+" <number> [name]")
		return
	}
	name = strings.TrimSpace(name)
	cand, c, err := r.reviews.choose(cid, 0, idx-1, func(c board.Candidate) (choice, error) {
		if cmd == "map" {
			if name == "" {
				return choice{}, &roster.ValidationError{Field: "name", Msg: "map needs a roster name"}
			}
			return choice{action: roster.MapToExisting, name: name}, nil
		}
		if name == "" {
			name = c.RawLabel
		}
		return choice{action: roster.CreateNew, name: name}, nil
	})
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	r.send(cid, fmt.Sprintf("#%d «%s»: %s", idx, cand.RawLabel, c))
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("telegram send failed", "chat", chatID, "err", err)
	}
}

func (r *Router) sendErr(chatID int64, err error) {
	var ve *roster.ValidationError
	if errors.As(err, &ve) || errors.Is(err, errStaleReview) {
		r.send(chatID, "⚠️ "+err.Error())
		return
	}
	r.log.Warn("request failed", "chat", chatID, "err", err)
	r.send(chatID, "❌ "+err.Error())
}
