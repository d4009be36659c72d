package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
)

const maxMessage = 3900

const helpText = `Send leaderboard screenshots (one or an album). Values go into the selected column.
/column <name> – select column
/guild <name> – guild name to ignore
/sheet <name> – load sheet, /sheets – list them, /save – save it
/roster [filter], /zero – members with an empty column
/growth <previous sheet>
/pending – review names again, /discard – drop them
/new <n> <name>, /map <n> <name> – decide by hand
/engine [name] – OCR engine`

// Callback data is "rv:<gen>:<op>:<index>:<arg>". Telegram limits it to 64
// bytes, so suggestions travel by position.
type callback struct {
	Gen   int
	Op    string
	Index int
	Arg   int
}

const (
	opNew     = "new"
	opMap     = "map"
	opSkip    = "skip"
	opApply   = "apply"
	opDiscard = "drop"
)

func (c callback) String() string {
	return fmt.Sprintf("rv:%d:%s:%d:%d", c.Gen, c.Op, c.Index, c.Arg)
}

func parseCallback(s string) (callback, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "rv" {
		return callback{}, fmt.Errorf("bad callback %q", s)
	}
	var c callback
	var err error
	if c.Gen, err = strconv.Atoi(parts[1]); err != nil {
		return callback{}, fmt.Errorf("bad callback %q", s)
	}
	c.Op = parts[2]
	if c.Index, err = strconv.Atoi(parts[3]); err != nil {
		return callback{}, fmt.Errorf("bad callback %q", s)
	}
	if c.Arg, err = strconv.Atoi(parts[4]); err != nil {
		return callback{}, fmt.Errorf("bad callback %q", s)
	}
	switch c.Op {
	case opNew, opMap, opSkip, opApply, opDiscard:
		return c, nil
	}
	return callback{}, fmt.Errorf("bad callback %q", s)
}

func candidateKeyboard(gen, idx int, c board.Candidate) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ new", callback{Gen: gen, Op: opNew, Index: idx}.String()),
			tgbotapi.NewInlineKeyboardButtonData("✖ skip", callback{Gen: gen, Op: opSkip, Index: idx}.String()),
		),
	}
	var sugg []tgbotapi.InlineKeyboardButton
	for i, s := range c.Suggestions {
		if i == 3 {
			break
		}
		sugg = append(sugg, tgbotapi.NewInlineKeyboardButtonData("→ "+s, callback{Gen: gen, Op: opMap, Index: idx, Arg: i}.String()))
	}
	if len(sugg) > 0 {
		rows = append(rows, sugg)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func applyKeyboard(gen int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ apply", callback{Gen: gen, Op: opApply}.String()),
		tgbotapi.NewInlineKeyboardButtonData("🗑 discard", callback{Gen: gen, Op: opDiscard}.String()),
	))
}

func formatReport(rep *scan.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s: %d updated", rep.Column, rep.Applied)
	if len(rep.Pending) > 0 {
		fmt.Fprintf(&b, ", %d new name(s) to review", len(rep.Pending))
	}
	if n := rep.Failed(); n > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d of %d image(s) failed", n, len(rep.Images))
		for _, im := range rep.Images {
			if im.Err != nil {
				fmt.Fprintf(&b, "\n%s: %v", im.ID, im.Err)
			}
		}
	}
	if len(rep.Missing) > 0 {
		fmt.Fprintf(&b, "\n⚠️ gone from roster: %s", strings.Join(rep.Missing, ", "))
	}
	for _, name := range rep.Order {
		fmt.Fprintf(&b, "\n• %s = %s", name, groupDigits(rep.Updates[name]))
	}
	return clip(b.String())
}

func formatCandidate(idx int, c board.Candidate) string {
	s := fmt.Sprintf("#%d «%s» → %s", idx+1, c.RawLabel, groupDigits(c.Value))
	if len(c.Suggestions) > 0 {
		s += "\nclosest: " + strings.Join(c.Suggestions, ", ")
	}
	return s
}

func formatApply(res roster.ApplyResult) string {
	s := fmt.Sprintf("✅ created %d, updated %d", res.Created, res.Mapped)
	if len(res.Stale) > 0 {
		s += "\n⚠️ no longer in roster: " + strings.Join(res.Stale, ", ")
	}
	return s
}

func formatMembers(columns []string, ents []roster.Entity) string {
	if len(ents) == 0 {
		return "no members"
	}
	var b strings.Builder
	for i, e := range ents {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Name, groupDigits(e.Total()))
		var parts []string
		for j, c := range columns {
			parts = append(parts, c+" "+groupDigits(e.Values[j]))
		}
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	return clip(b.String())
}

func formatGrowth(rows []roster.GrowthRow) string {
	if len(rows) == 0 {
		return "no members"
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		sign := "+"
		if r.Diff < 0 {
			sign = "-"
		}
		d := r.Diff
		if d < 0 {
			d = -d
		}
		fmt.Fprintf(&b, "%s%s %s (%s ← %s)", sign, groupDigits(d), r.Name, groupDigits(r.Current), groupDigits(r.Previous))
	}
	return clip(b.String())
}

// groupDigits renders 1234567 as 1,234,567.
func groupDigits(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func clip(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	cut := maxMessage
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
