package service

import (
	"strings"
	"sync"
	"time"
)

// LoginRateLimiter limita los intentos fallidos de login por clave.
type LoginRateLimiter interface {
	Allow(key string) bool
	RecordFailure(key string)
	Reset(key string)
}

type memoryLoginRateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	failures map[string][]time.Time
	now      func() time.Time
}

// NewLoginRateLimiter crea un rate limiter en memoria de ventana deslizante.
func NewLoginRateLimiter(window time.Duration, max int) LoginRateLimiter {
	return newMemoryLoginRateLimiter(window, max, time.Now)
}

func newMemoryLoginRateLimiter(window time.Duration, max int, now func() time.Time) *memoryLoginRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryLoginRateLimiter{
		window:   window,
		max:      max,
		failures: make(map[string][]time.Time),
		now:      now,
	}
}

// Allow indica si la clave aún no agotó sus fallos dentro de la ventana.
func (l *memoryLoginRateLimiter) Allow(key string) bool {
	key = normalizeLimiterKey(key)
	if key == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key)) < l.max
}

func (l *memoryLoginRateLimiter) RecordFailure(key string) {
	key = normalizeLimiterKey(key)
	if key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key] = append(l.prune(key), l.now().UTC())
}

func (l *memoryLoginRateLimiter) Reset(key string) {
	key = normalizeLimiterKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}

// prune descarta fallos vencidos y elimina la clave si queda vacía. Requiere l.mu.
func (l *memoryLoginRateLimiter) prune(key string) []time.Time {
	cutoff := l.now().UTC().Add(-l.window)
	entries := l.failures[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, key)
		return nil
	}
	l.failures[key] = kept
	return kept
}

func (l *memoryLoginRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

func normalizeLimiterKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
