package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
	acks []string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		b.acks = append(b.acks, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) { return "file://" + fileID, nil }

// texts returns the text of every plain message sent so far.
func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) last() string {
	t := b.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type tableEngine struct{ byData map[string][]ocr.Detection }

func (e *tableEngine) Name() string { return "table" }

func (e *tableEngine) Detect(_ context.Context, img ocr.Image) ([]ocr.Detection, error) {
	return e.byData[string(img.Data)], nil
}

func row(label, value string, y float64) []ocr.Detection {
	return []ocr.Detection{
		{Quad: ocr.Rect(10, y-10, 80, y+10), Text: label, Confidence: 0.9},
		{Quad: ocr.Rect(200, y-10, 260, y+10), Text: value, Confidence: 0.9},
	}
}

const chat = int64(42)

func newRouter(t *testing.T, eng ocr.Engine, store roster.Store) (*Router, *fakeBot, *scan.Session) {
	t.Helper()
	ss, err := scan.NewSessions(scan.Defaults{Columns: []string{"Boss1", "Boss2"}})
	if err != nil {
		t.Fatal(err)
	}
	bot := &fakeBot{}
	r := NewRouter(bot, ss, scan.NewService(eng, scan.Config{Threshold: board.DefaultThreshold, Suggestions: 3}), ocr.NewManager(eng), store, nil)
	return r, bot, r.session(chat)
}

func command(text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chat},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func press(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chat}},
	}}
}

func TestCallbackRoundTrip(t *testing.T) {
	c := callback{Gen: 12, Op: opMap, Index: 3, Arg: 1}
	got, err := parseCallback(c.String())
	if err != nil || got != c {
		t.Fatalf("parseCallback(%q) = %+v, %v", c.String(), got, err)
	}
	if len(c.String()) > 64 {
		t.Fatalf("callback data too long: %d", len(c.String()))
	}
	for _, bad := range []string{"", "rv:1:new:0", "rv:x:new:0:0", "rv:1:zap:0:0", "hint_next"} {
		if _, err := parseCallback(bad); err == nil {
			t.Errorf("parseCallback(%q) accepted", bad)
		}
	}
}

func TestGroupDigits(t *testing.T) {
	tests := map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -15000: "-15,000"}
	for in, want := range tests {
		if got := groupDigits(in); got != want {
			t.Errorf("groupDigits(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestClipKeepsRunes(t *testing.T) {
	s := strings.Repeat("ไ", maxMessage)
	got := clip(s)
	if !strings.HasSuffix(got, "…") || len(got) > maxMessage+len("…") {
		t.Fatalf("clip length %d", len(got))
	}
	if strings.ContainsRune(got, '�') {
		t.Fatal("clip split a rune")
	}
}

func TestScanReviewApply(t *testing.T) {
	eng := &tableEngine{byData: map[string][]ocr.Detection{
		"img": append(append(row("Alice", "15,000", 50), row("Bobby", "8000", 100)...), row("Zed", "7000", 150)...),
	}}
	r, bot, sess := newRouter(t, eng, nil)
	_ = sess.Roster.Add("Alice", nil)
	_ = sess.Roster.Add("Bobbie", nil)

	r.scanImages(context.Background(), chat, []ocr.Image{{ID: "a", Data: []byte("img")}})

	texts := bot.texts()
	if len(texts) < 4 || !strings.Contains(texts[0], "1 updated") {
		t.Fatalf("messages = %q", texts)
	}
	gen, ok := r.reviews.current(chat)
	if !ok {
		t.Fatal("no review started")
	}
	_, pending := sess.Ledger.Pending()
	if len(pending) != 2 || pending[0].RawLabel != "Bobby" || pending[0].Suggestions[0] != "Bobbie" {
		t.Fatalf("pending = %+v", pending)
	}

	ctx := context.Background()
	r.HandleUpdate(ctx, press(callback{Gen: gen, Op: opMap, Index: 0, Arg: 0}.String()))
	r.HandleUpdate(ctx, press(callback{Gen: gen, Op: opNew, Index: 1}.String()))
	r.HandleUpdate(ctx, press(callback{Gen: gen, Op: opApply}.String()))

	if !strings.Contains(bot.last(), "created 1, updated 1") {
		t.Fatalf("apply reply = %q", bot.last())
	}
	if v, _ := sess.Roster.Value("Bobbie", "Boss1"); v != 8000 {
		t.Fatalf("Bobbie = %d", v)
	}
	if v, _ := sess.Roster.Value("Zed", "Boss1"); v != 7000 {
		t.Fatalf("Zed = %d", v)
	}
	if sess.Ledger.Len() != 0 {
		t.Fatal("ledger not cleared")
	}
}

func TestStaleButtonsRejected(t *testing.T) {
	eng := &tableEngine{byData: map[string][]ocr.Detection{"img": row("Zed", "7000", 50)}}
	r, bot, sess := newRouter(t, eng, nil)
	img := []ocr.Image{{Data: []byte("img")}}

	r.scanImages(context.Background(), chat, img)
	old, _ := r.reviews.current(chat)
	r.scanImages(context.Background(), chat, img)

	r.HandleUpdate(context.Background(), press(callback{Gen: old, Op: opNew, Index: 0}.String()))
	if len(bot.acks) == 0 || bot.acks[len(bot.acks)-1] != errStaleReview.Error() {
		t.Fatalf("acks = %q", bot.acks)
	}
	if sess.Roster.Len() != 0 {
		t.Fatal("stale button changed the roster")
	}
}

func TestApplyAfterRestageRejected(t *testing.T) {
	eng := &tableEngine{byData: map[string][]ocr.Detection{"img": row("Zed", "7000", 50)}}
	r, bot, sess := newRouter(t, eng, nil)
	ctx := context.Background()

	r.scanImages(ctx, chat, []ocr.Image{{Data: []byte("img")}})
	gen, _ := r.reviews.current(chat)
	r.HandleUpdate(ctx, press(callback{Gen: gen, Op: opNew, Index: 0}.String()))

	sess.Ledger.Stage("later-batch", "Boss1", []board.Candidate{{RawLabel: "Bobb", Value: 1}})
	r.HandleUpdate(ctx, press(callback{Gen: gen, Op: opApply}.String()))

	if !strings.HasPrefix(bot.last(), "⚠️") || !strings.Contains(bot.last(), "batch") {
		t.Fatalf("apply reply = %q", bot.last())
	}
	if sess.Roster.Len() != 0 || sess.Ledger.Len() != 1 {
		t.Fatalf("roster %v, pending %d", sess.Roster.Names(), sess.Ledger.Len())
	}
}

func TestCommands(t *testing.T) {
	r, bot, sess := newRouter(t, &tableEngine{}, nil)
	ctx := context.Background()

	r.HandleUpdate(ctx, command("/column Boss2"))
	if sess.Column() != "Boss2" || !strings.Contains(bot.last(), "Boss2") {
		t.Fatalf("column = %q reply %q", sess.Column(), bot.last())
	}
	r.HandleUpdate(ctx, command("/column Nope"))
	if sess.Column() != "Boss2" || !strings.HasPrefix(bot.last(), "⚠️") {
		t.Fatalf("bad column reply %q", bot.last())
	}
	r.HandleUpdate(ctx, command("/guild MeAndBro"))
	if sess.Guild() != "MeAndBro" {
		t.Fatalf("guild = %q", sess.Guild())
	}
	_ = sess.Roster.Add("Alice", map[string]int64{"Boss1": 5})
	r.HandleUpdate(ctx, command("/zero"))
	if !strings.Contains(bot.last(), "Alice") {
		t.Fatalf("zero reply %q", bot.last())
	}
	r.HandleUpdate(ctx, command("/engine nope"))
	if !strings.Contains(bot.last(), "unknown ocr engine") {
		t.Fatalf("engine reply %q", bot.last())
	}
	r.HandleUpdate(ctx, command("/save"))
	if !strings.Contains(bot.last(), "no roster store") {
		t.Fatalf("save reply %q", bot.last())
	}
}

func TestManualChoice(t *testing.T) {
	eng := &tableEngine{byData: map[string][]ocr.Detection{"img": row("Bobb", "8000", 50)}}
	r, _, sess := newRouter(t, eng, nil)
	ctx := context.Background()
	r.scanImages(ctx, chat, []ocr.Image{{Data: []byte("img")}})

	r.HandleUpdate(ctx, command("/new 1 Bob the Great"))
	r.HandleUpdate(ctx, command("/apply"))
	e, ok := sess.Roster.Get("Bob the Great")
	if !ok || e.Values[0] != 8000 {
		t.Fatalf("entity = %+v %v", e, ok)
	}
}

func TestSheetCommands(t *testing.T) {
	st := roster.NewFileStore(t.TempDir(), roster.Layout{Columns: []string{"Boss1", "Boss2"}}, nil)
	prev := roster.MustNew([]string{"Boss1", "Boss2"})
	_ = prev.Add("Alice", map[string]int64{"Boss1": 100})
	if err := st.Save(context.Background(), "w1", prev); err != nil {
		t.Fatal(err)
	}
	r, bot, sess := newRouter(t, &tableEngine{}, st)
	ctx := context.Background()

	r.HandleUpdate(ctx, command("/sheet w2"))
	_ = sess.Roster.Add("Alice", map[string]int64{"Boss1": 300})
	r.HandleUpdate(ctx, command("/save"))
	if !strings.Contains(bot.last(), "saved w2") {
		t.Fatalf("save reply %q", bot.last())
	}
	r.HandleUpdate(ctx, command("/growth w1"))
	if !strings.HasPrefix(bot.last(), "+200 Alice") {
		t.Fatalf("growth reply %q", bot.last())
	}
	r.HandleUpdate(ctx, command("/sheets"))
	if bot.last() != "sheets:\nw1\nw2" {
		t.Fatalf("sheets reply %q", bot.last())
	}
}

func TestBatcherDebounce(t *testing.T) {
	got := make(chan []ocr.Image, 2)
	b := newBatcher(30*time.Millisecond, func(_ int64, imgs []ocr.Image) { got <- imgs })

	if !b.add("grp:1", chat, ocr.Image{ID: "a"}) {
		t.Fatal("first add did not open the batch")
	}
	if b.add("grp:1", chat, ocr.Image{ID: "b"}) {
		t.Fatal("second add opened a new batch")
	}
	select {
	case imgs := <-got:
		if len(imgs) != 2 || imgs[0].ID != "a" || imgs[1].ID != "b" {
			t.Fatalf("flushed %+v", imgs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}
}
