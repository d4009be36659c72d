package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/config"
	"guild-roster/api/internal/handle"
	"guild-roster/api/internal/httpserver"
	"guild-roster/api/internal/telegram"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default ./config.yaml when present)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cm, err := config.NewManager(*cfgPath, nil)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	cfg := cm.Get()
	log := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(log)

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		log.Error("missing required env TELEGRAM_BOT_TOKEN")
		os.Exit(1)
	}

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	cm.OnChange(deps.Reload)
	cm.Watch()
	go deps.RunJanitor(ctx, time.Hour, cfg.Scan.SessionTTL, cfg.Scan.CacheTTL)

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram", "err", err)
		os.Exit(1)
	}
	bot.Debug = false
	log.Info("bot authorized", "user", bot.Self.UserName)

	r := telegram.NewRouter(bot, deps.Sessions, deps.Service, deps.Engines, deps.Store, log)

	var hopts []handle.Option
	if deps.DB != nil {
		hopts = append(hopts, handle.WithPing(deps.DB.PingContext))
	}
	h := handle.New(deps.Sessions, deps.Service, deps.Engines, hopts...)

	// DefaultServeMux, because ListenForWebhook registers itself there.
	http.HandleFunc("/healthz", h.Healthz)
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.Telegram.WebhookURL); webhookURL != "" {
		err = runWebhook(ctx, addr, bot, r, webhookURL, log)
	} else {
		go func() {
			if err := httpserver.Serve(ctx, addr, http.DefaultServeMux, log); err != nil {
				log.Error("health server", "err", err)
			}
		}()
		runPolling(ctx, bot, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }, log)
	}
	if err != nil {
		log.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}

func runWebhook(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, log *slog.Logger) error {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(ctx, upd)
		}
		log.Info("webhook updates channel closed")
	}()

	log.Info("webhook registered", "path", path)
	return httpserver.Serve(ctx, addr, http.DefaultServeMux, log)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *slog.Logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info("polling stopped")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", "err", err, "retry_in", d)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

// shortHash is a stable FNV-1a hex of the token for the webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
