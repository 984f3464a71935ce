package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/config"
)

// Notifier delivers a run summary to a human.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, text string) error

func (f Func) Notify(ctx context.Context, text string) error { return f(ctx, text) }

// Multi fans a message out to every sink. All sinks are tried; their
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes the message to the log. It is always part of the
// configured fan-out so a summary is visible even without remote sinks.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, text string) error {
	l.logger.Info("Notification", zap.String("text", text))
	return nil
}

// New builds the notifier set described by cfg.
func New(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	logger = logger.Named("notify")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	sinks := Multi{NewLogNotifier(logger)}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, NewTelegram(cfg.Telegram, client))
		logger.Debug("Telegram notifications enabled")
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, NewWebhook(cfg.Webhook, client))
		logger.Debug("Webhook notifications enabled", zap.String("url", cfg.Webhook.URL))
	}
	return sinks
}

// BestEffort sends text and logs, rather than returns, any failure.
func BestEffort(ctx context.Context, n Notifier, logger *zap.Logger, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		logger.Warn("Notification failed", zap.Error(err))
	}
}
