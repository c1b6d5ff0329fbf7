// Package bot provides a Telegram bot that answers prime number queries:
// the n-th prime, primality checks and prime listings.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/bigneek/primeflare/pkg/primes"
	"github.com/bigneek/primeflare/pkg/quota"
	"github.com/bigneek/primeflare/pkg/storage"
)

const helpText = "Prime bot ready.\n\n" +
	"Commands:\n" +
	"/nth &lt;n&gt; - The n-th prime, counting from 0 (0 → 2)\n" +
	"/isprime &lt;n&gt; - Check whether n is prime\n" +
	"/primes &lt;limit&gt; - List every prime up to limit\n" +
	"/status - Show limits and storage\n\n" +
	"Or just send a number and I'll find that prime for you."

// Bot wraps the Telegram bot and the prime query handlers.
type Bot struct {
	tg    *telego.Bot
	quota *quota.Manager
	r2    *storage.R2Client
	log   *zap.Logger
}

// Config holds everything needed to start the bot.
type Config struct {
	TelegramToken string
	Limits        quota.Limits
	R2            *storage.R2Client // optional; persists per-chat usage
	Logger        *zap.Logger
}

// New creates a new Bot from the given config.
func New(cfg Config) (*Bot, error) {
	tg, err := telego.NewBot(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newBot(tg, cfg), nil
}

func newBot(tg *telego.Bot, cfg Config) *Bot {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var store quota.Store
	if cfg.R2 != nil {
		store = cfg.R2
	}
	return &Bot{
		tg:    tg,
		quota: quota.NewManager(store, cfg.Limits, log.Named("quota")),
		r2:    cfg.R2,
		log:   log,
	}
}

// Run starts the bot with long-polling and blocks until interrupted.
func (b *Bot) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	me, err := b.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe failed: %w", err)
	}
	b.log.Info("bot online", zap.String("username", me.Username), zap.Int64("id", me.ID))

	updates, err := b.tg.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("long polling: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			b.log.Info("shutting down bot")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	var user string
	if msg.From != nil {
		user = msg.From.Username
	}
	b.log.Debug("message", zap.String("user", user), zap.Int64("chat", msg.Chat.ID), zap.String("text", text))

	_ = b.tg.SendChatAction(ctx, tu.ChatAction(msg.Chat.ChatID(), telego.ChatActionTyping))

	reply := b.respond(ctx, quota.FormatChatID(msg.Chat.ID), text)

	_, err := b.tg.SendMessage(ctx, tu.Message(msg.Chat.ChatID(), reply).WithParseMode(telego.ModeHTML))
	if err != nil {
		b.log.Warn("send failed", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
	}
}

// respond builds the HTML reply for one message from chatID.
func (b *Bot) respond(ctx context.Context, chatID, text string) string {
	cmd, arg := splitCommand(text)

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/status":
		return b.statusReport()
	case "/nth":
		return b.handleNth(ctx, chatID, arg)
	case "/isprime":
		return b.handleIsPrime(ctx, chatID, arg)
	case "/primes":
		return b.handlePrimes(ctx, chatID, arg)
	case "":
		if _, err := strconv.Atoi(arg); err == nil {
			return b.handleNth(ctx, chatID, arg)
		}
		return "Send a number, or /start for the command list."
	default:
		return fmt.Sprintf("Unknown command %s. Try /start.", escapeHTML(cmd))
	}
}

// splitCommand separates "/cmd@botname arg" into "/cmd" and "arg".
// Text without a leading slash comes back as ("", text).
func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, arg, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func (b *Bot) statusReport() string {
	limits := b.quota.Limits()
	lines := []string{
		"Prime bot status:",
		"  Largest index: " + limitText(int64(limits.MaxIndex)),
		"  Largest sieve limit: " + limitText(int64(limits.MaxSieveLimit)),
		"  Queries per chat: " + limitText(limits.MaxQueries),
	}
	if b.r2 != nil {
		lines = append(lines, fmt.Sprintf("  R2: connected (bucket: %s)", escapeHTML(b.r2.Bucket())))
	} else {
		lines = append(lines, "  R2: not configured (usage kept in memory)")
	}
	return strings.Join(lines, "\n")
}

func limitText(v int64) string {
	if v <= 0 {
		return "unlimited"
	}
	return code(v)
}

func (b *Bot) handleNth(ctx context.Context, chatID, arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "Usage: /nth &lt;n&gt;"
	}
	if refusal := b.admit(ctx, chatID, b.quota.CheckIndex(n)); refusal != "" {
		return refusal
	}

	p, err := primes.NthPrime(n)
	if errors.Is(err, primes.ErrInvalidArgument) {
		return "The index must be 0 or greater (0 → 2)."
	}
	if err != nil {
		b.log.Error("nth prime failed", zap.Int("n", n), zap.Error(err))
		return fmt.Sprintf("Error: %s", escapeHTML(err.Error()))
	}

	b.record(ctx, chatID, quota.Usage{LargestIndex: n})
	return fmt.Sprintf("Prime #%s (counting from 0) is %s", code(n), code(p))
}

func (b *Bot) handleIsPrime(ctx context.Context, chatID, arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "Usage: /isprime &lt;n&gt;"
	}
	if refusal := b.admit(ctx, chatID, nil); refusal != "" {
		return refusal
	}

	if primes.IsPrime(n) {
		return code(n) + " is prime."
	}
	return code(n) + " is not prime."
}

func (b *Bot) handlePrimes(ctx context.Context, chatID, arg string) string {
	limit, err := strconv.Atoi(arg)
	if err != nil {
		return "Usage: /primes &lt;limit&gt;"
	}
	if refusal := b.admit(ctx, chatID, b.quota.CheckSieveLimit(limit)); refusal != "" {
		return refusal
	}

	ps := primes.Sieve(limit)
	b.record(ctx, chatID, quota.Usage{LargestSieveLimit: limit})
	if len(ps) == 0 {
		return fmt.Sprintf("There are no primes up to %s.", code(limit))
	}

	header := fmt.Sprintf("%d primes up to %s:\n", len(ps), code(limit))
	return header + preBlock(primes.Format(ps, 10), maxMessageLen-len(header))
}

// admit returns a refusal reply for a limit violation, an exhausted query
// allowance or an unreadable usage record, or "" when the request may run.
// A successful admit counts the query.
func (b *Bot) admit(ctx context.Context, chatID string, limitErr error) string {
	if limitErr == nil {
		limitErr = b.quota.Admit(ctx, chatID)
	}
	switch {
	case limitErr == nil:
		return ""
	case errors.Is(limitErr, quota.ErrLimitExceeded):
		b.log.Info("request refused", zap.String("chat", chatID), zap.Error(limitErr))
		return "Refused: " + escapeHTML(limitErr.Error())
	default:
		b.log.Warn("quota unavailable", zap.String("chat", chatID), zap.Error(limitErr))
		return "Usage tracking is unavailable right now, try again shortly."
	}
}

func (b *Bot) record(ctx context.Context, chatID string, delta quota.Usage) {
	if err := b.quota.Record(ctx, chatID, delta); err != nil {
		b.log.Warn("quota record failed", zap.String("chat", chatID), zap.Error(err))
	}
}
