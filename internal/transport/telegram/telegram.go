// Package telegram delivers notifications to one Telegram chat through a send-only bot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

type Config struct {
	Token     string
	ChatID    int64
	ThreadID  int
	ParseMode string
	// URL overrides the Bot API endpoint (self-hosted API servers, tests).
	URL string
	// Offline skips the getMe handshake on construction.
	Offline bool
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Send(ctx context.Context, n transport.Notification) error {
	text := prefixFor(n.Kind) + n.Message()
	chunks := splitText(text, textLimit, a.cfg.ParseMode)
	chat := &tele.Chat{ID: a.cfg.ChatID}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             a.cfg.ParseMode,
			DisableWebPagePreview: true,
			ThreadID:              a.cfg.ThreadID,
		})
		if err != nil {
			if i > 0 {
				a.log.Warn("message partially delivered", logx.Int("sent_chunks", i), logx.Int("chunks", len(chunks)))
			}
			return err
		}
	}
	return nil
}

func prefixFor(k transport.Kind) string {
	switch k {
	case transport.KindOverdueSevere:
		return "🚨 "
	case transport.KindOverdue:
		return "⚠️ "
	case transport.KindDueToday, transport.KindDueTomorrow, transport.KindDueIn3Days:
		return "📅 "
	case transport.KindBreak:
		return "☕ "
	case transport.KindDigest:
		return "📊 "
	default:
		return ""
	}
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts. It prefers newline
// boundaries and, for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
