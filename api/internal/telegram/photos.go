package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/scan"
	"guild-roster/api/internal/util"
)

const scanTimeout = 3 * time.Minute

func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	var fileID, mime string
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	} else {
		fileID, mime = msg.Document.FileID, msg.Document.MimeType
	}
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		r.sendErr(cid, err)
		return
	}
	data, err := r.fetch(ctx, url)
	if err != nil {
		r.sendErr(cid, fmt.Errorf("download: %w", err))
		return
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}
	img := ocr.Image{
		ID:   fmt.Sprintf("msg-%d", msg.MessageID),
		Data: data,
		MIME: util.PickMIME(mime, "", data),
	}
	if r.batches.add(key, cid, img) {
		r.send(cid, "📥 got it, reading into "+r.session(cid).Column()+"…")
	}
}

// scanImages runs one batch and posts the summary and the review buttons.
func (r *Router) scanImages(ctx context.Context, chatID int64, images []ocr.Image) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	sess := r.session(chatID)
	rep, err := r.svc.RunBatch(ctx, sess, scan.Batch{Images: images, Engine: r.engines.Get(chatID)})
	if err != nil {
		r.sendErr(chatID, err)
		return
	}
	r.send(chatID, formatReport(rep))
	r.showPending(chatID, sess)
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
