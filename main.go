// PrimeFlare - n-th prime lookups from the command line or Telegram,
// with listings exported to R2.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bigneek/primeflare/pkg/bot"
	"github.com/bigneek/primeflare/pkg/primes"
	"github.com/bigneek/primeflare/pkg/quota"
	"github.com/bigneek/primeflare/pkg/storage"
)

const usage = `usage: primeflare <command> [args]

commands:
  nth <n>           print the n-th prime, counting from 0
  isprime <n>       report whether n is prime
  primes <limit>    print every prime up to limit
  publish <limit>   upload the primes up to limit to R2
  bot               run the Telegram bot`

// config is read from the environment after .env is loaded.
type config struct {
	TelegramToken string
	AccountID     string
	R2AccessKey   string
	R2SecretKey   string
	R2Bucket      string
	Limits        quota.Limits
	LogLevel      string
	LogFormat     string
}

func loadConfig() (config, error) {
	cfg := config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AccountID:     os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKey:   os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey:   os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:      envOr("R2_BUCKET", "primeflare"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.Limits.MaxIndex, err = envInt("PRIME_MAX_INDEX", 10_000_000); err != nil {
		return cfg, err
	}
	if cfg.Limits.MaxSieveLimit, err = envInt("PRIME_MAX_SIEVE", 20_000_000); err != nil {
		return cfg, err
	}
	maxQueries, err := envInt("PRIME_MAX_QUERIES", 0)
	if err != nil {
		return cfg, err
	}
	cfg.Limits.MaxQueries = int64(maxQueries)
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %d", key, n)
	}
	return n, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func (c config) r2Client() (*storage.R2Client, error) {
	return storage.NewR2Client(c.AccountID, c.R2AccessKey, c.R2SecretKey, c.R2Bucket)
}

func (c config) hasR2() bool {
	return c.AccountID != "" && c.R2AccessKey != "" && c.R2SecretKey != ""
}

func main() {
	envErr := godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(exitUsage)
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	if envErr != nil {
		log.Debug("no .env file loaded", zap.Error(envErr))
	}
	primes.SetLogger(log.Named("primes"))

	err = run(cfg, log, os.Args[1:])
	if err != nil {
		log.Error("command failed", zap.Error(err))
	}
	// os.Exit skips deferred calls, so flush before leaving.
	_ = log.Sync()

	code := exitCode(err)
	if code == exitUsage {
		fmt.Fprintln(os.Stderr, usage)
	}
	if code != exitOK {
		os.Exit(code)
	}
}

var errUsage = errors.New("bad usage")

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2 // bad arguments or configuration
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		return exitError
	}
}

func run(cfg config, log *zap.Logger, args []string) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "nth":
		return runNth(args)
	case "isprime":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		fmt.Println(primes.IsPrime(n))
		return nil
	case "primes":
		limit, err := intArg(args)
		if err != nil {
			return err
		}
		fmt.Println(primes.Format(primes.Sieve(limit), 10))
		return nil
	case "publish":
		return runPublish(cfg, log, args)
	case "bot":
		return runBot(cfg, log)
	case "", "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	}

	// Default: a bare index is an nth query.
	if _, err := strconv.Atoi(cmd); err == nil {
		return runNth([]string{cmd})
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one integer argument", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUsage, err)
	}
	return n, nil
}

func runNth(args []string) error {
	n, err := intArg(args)
	if err != nil {
		return err
	}
	p, err := primes.NthPrime(n)
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

func runPublish(cfg config, log *zap.Logger, args []string) error {
	limit, err := intArg(args)
	if err != nil {
		return err
	}
	if !cfg.hasR2() {
		return errors.New("publish needs CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY")
	}
	r2, err := cfg.r2Client()
	if err != nil {
		return fmt.Errorf("R2 client init: %w", err)
	}

	ps := primes.Sieve(limit)
	key := fmt.Sprintf("primes/upto-%d.txt", limit)
	data := []byte(primes.Format(ps, 10) + "\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := r2.Upload(ctx, key, "text/plain; charset=utf-8", data); err != nil {
		return err
	}
	log.Info("published primes",
		zap.String("bucket", r2.Bucket()),
		zap.String("key", key),
		zap.Int("count", len(ps)),
		zap.Int("bytes", len(data)),
	)
	fmt.Printf("R2: uploaded %d primes to %s/%s\n", len(ps), r2.Bucket(), key)
	return nil
}

func runBot(cfg config, log *zap.Logger) error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required for bot mode")
	}

	bc := bot.Config{
		TelegramToken: cfg.TelegramToken,
		Limits:        cfg.Limits,
		Logger:        log.Named("bot"),
	}
	if cfg.hasR2() {
		r2, err := cfg.r2Client()
		if err != nil {
			log.Warn("R2 client init failed (non-fatal)", zap.Error(err))
		} else {
			bc.R2 = r2
		}
	}

	b, err := bot.New(bc)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	return b.Run()
}
