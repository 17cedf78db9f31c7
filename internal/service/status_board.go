package service

import (
	"time"

	"github.com/go-orz/cache"
	"go.uber.org/zap"
)

const (
	statusKey = "status"
	statusTTL = 5 * time.Second
)

// StatusBoard holds the latest user-facing status line for five seconds.
type StatusBoard struct {
	logger *zap.Logger
	cache  cache.Cache[string, string]
}

// NewStatusBoard returns an empty board.
func NewStatusBoard(logger *zap.Logger) *StatusBoard {
	return &StatusBoard{
		logger: logger,
		cache:  cache.New[string, string](time.Minute),
	}
}

// Post replaces the current message.
func (b *StatusBoard) Post(msg string) {
	b.logger.Info("status", zap.String("message", msg))
	b.cache.Set(statusKey, msg, statusTTL)
}

// Current returns the message if it has not expired.
func (b *StatusBoard) Current() (string, bool) {
	return b.cache.Get(statusKey)
}
