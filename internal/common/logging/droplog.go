package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// SuppressingLogger emits at most one warning per key within a cooldown window.
// Warnings swallowed during the window are counted and reported with the next emitted one,
// so a persistent failure shows up as one line per window rather than one per occurrence.
type SuppressingLogger struct {
	logger     *logrus.Entry
	emitted    *cache.Cache
	mu         sync.Mutex
	suppressed map[string]int
}

func NewSuppressingLogger(logger *logrus.Entry, cooldown time.Duration) *SuppressingLogger {
	return &SuppressingLogger{
		logger:     logger,
		emitted:    cache.New(cooldown, 2*cooldown),
		suppressed: map[string]int{},
	}
}

// Warnf logs the formatted message under key unless a message for key was logged within the cooldown.
// Returns true if the message was logged.
func (l *SuppressingLogger) Warnf(key string, fields logrus.Fields, format string, args ...interface{}) bool {
	l.mu.Lock()
	if err := l.emitted.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		l.suppressed[key]++
		l.mu.Unlock()
		return false
	}
	suppressed := l.suppressed[key]
	delete(l.suppressed, key)
	l.mu.Unlock()

	entry := l.logger.WithFields(fields)
	if suppressed > 0 {
		entry = entry.WithField("suppressed", suppressed)
	}
	entry.Warn(fmt.Sprintf(format, args...))
	return true
}
