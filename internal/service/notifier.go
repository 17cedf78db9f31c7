package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/dushixiang/gleam/internal/alert"
	"github.com/dushixiang/gleam/internal/config"
)

// Notifier delivers one alert to the user.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier logs through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs a at the zap level matching its severity.
func (n *LogNotifier) Notify(_ context.Context, a alert.Alert) error {
	fields := []zap.Field{
		zap.String("type", a.Type.Key()),
		zap.Float64("value", a.Value),
		zap.Float64("threshold", a.Threshold),
	}
	switch a.Level {
	case alert.LevelCritical:
		n.logger.Error(a.Message, fields...)
	case alert.LevelWarning:
		n.logger.Warn(a.Message, fields...)
	default:
		n.logger.Info(a.Message, fields...)
	}
	return nil
}

// EmailNotifier sends each alert as a plain-text mail.
type EmailNotifier struct {
	cfg  config.EmailConfig
	send func(m *gomail.Message) error
}

// NewEmailNotifier dials the SMTP server in cfg for every alert.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailNotifier{cfg: cfg, send: func(m *gomail.Message) error {
		return dialer.DialAndSend(m)
	}}
}

// Notify sends a to every configured recipient.
func (n *EmailNotifier) Notify(ctx context.Context, a alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[gleam] %s alert: %s", a.Level, a.Type.Key()))
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nValue: %.1f\nThreshold: %.1f\nTime: %s\n",
		a.Message, a.Value, a.Threshold, time.Unix(int64(a.Timestamp), 0).Format(time.RFC3339)))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}

// MultiNotifier fans an alert out to every notifier and joins their errors.
type MultiNotifier []Notifier

// Notify calls every notifier, even after a failure.
func (m MultiNotifier) Notify(ctx context.Context, a alert.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFor builds the notifier chain for cfg. The log notifier is always present.
func NotifierFor(logger *zap.Logger, cfg config.AlertConfig) Notifier {
	notifiers := MultiNotifier{NewLogNotifier(logger)}
	if cfg.Email.Enabled {
		notifiers = append(notifiers, NewEmailNotifier(cfg.Email))
	}
	return notifiers
}
