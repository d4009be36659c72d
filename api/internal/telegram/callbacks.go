package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
)

// showPending posts one message per pending candidate and a final
// apply/discard keyboard.
func (r *Router) showPending(chatID int64, sess *scan.Session) {
	// Batch is read first: if a new scan lands in between, apply fails
	// instead of deciding the wrong candidates.
	batch := sess.Ledger.Batch()
	column, pending := sess.Ledger.Pending()
	if len(pending) == 0 {
		r.reviews.drop(chatID)
		return
	}
	gen := r.reviews.start(chatID, batch, column, pending)
	for i, c := range pending {
		m := tgbotapi.NewMessage(chatID, formatCandidate(i, c))
		m.ReplyMarkup = candidateKeyboard(gen, i, c)
		if _, err := r.bot.Send(m); err != nil {
			r.log.Warn("telegram send failed", "chat", chatID, "err", err)
		}
	}
	m := tgbotapi.NewMessage(chatID, fmt.Sprintf("Pick an action for each name (column %s), then apply. Names without a pick are skipped.", column))
	m.ReplyMarkup = applyKeyboard(gen)
	if _, err := r.bot.Send(m); err != nil {
		r.log.Warn("telegram send failed", "chat", chatID, "err", err)
	}
}

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	data, err := parseCallback(cb.Data)
	if err != nil {
		r.ack(cb.ID, "")
		r.log.Debug("unknown callback", "data", cb.Data)
		return
	}
	sess := r.session(cid)

	switch data.Op {
	case opApply:
		r.ack(cb.ID, "")
		r.clearKeyboard(cid, msgID)
		r.apply(cid, sess, data.Gen)
	case opDiscard:
		if gen, ok := r.reviews.current(cid); !ok || gen != data.Gen {
			r.ack(cb.ID, errStaleReview.Error())
			return
		}
		sess.Ledger.Discard()
		r.reviews.drop(cid)
		r.ack(cb.ID, "dropped")
		r.clearKeyboard(cid, msgID)
		r.send(cid, "🗑 pending names dropped")
	default:
		cand, c, err := r.reviews.choose(cid, data.Gen, data.Index, func(c board.Candidate) (choice, error) {
			switch data.Op {
			case opNew:
				return choice{action: roster.CreateNew, name: c.RawLabel}, nil
			case opMap:
				if data.Arg < 0 || data.Arg >= len(c.Suggestions) {
					return choice{}, fmt.Errorf("no suggestion %d", data.Arg+1)
				}
				return choice{action: roster.MapToExisting, name: c.Suggestions[data.Arg]}, nil
			default:
				return choice{skip: true}, nil
			}
		})
		if err != nil {
			r.ack(cb.ID, err.Error())
			return
		}
		r.ack(cb.ID, fmt.Sprintf("«%s»: %s", cand.RawLabel, c))
		edit := tgbotapi.NewEditMessageText(cid, msgID, formatCandidate(data.Index, cand)+"\n✔ "+c.String())
		if _, err := r.bot.Send(edit); err != nil {
			r.log.Debug("edit failed", "chat", cid, "err", err)
		}
	}
}

// apply confirms the recorded choices. gen 0 means the current review.
func (r *Router) apply(cid int64, sess *scan.Session, gen int) {
	batch, decisions, err := r.reviews.decisions(cid, gen)
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	res, err := sess.Confirm(batch, decisions)
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	r.reviews.drop(cid)
	r.log.Info("decisions applied", "chat", cid, "created", res.Created, "mapped", res.Mapped, "stale", len(res.Stale))
	r.send(cid, formatApply(res))
}

func (r *Router) ack(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Debug("callback ack failed", "err", err)
	}
}

func (r *Router) clearKeyboard(cid int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(cid, msgID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = r.bot.Send(edit)
}
