// Package conversation provides the bounded per-user conversation memory for crm-assistant.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// DefaultMaxExchanges is the number of exchanges kept per user.
const DefaultMaxExchanges = 10

// CleanupInterval is how often idle logs are checked when an idle TTL is set.
const CleanupInterval = 5 * time.Minute

// userLog is one user's ordered exchange buffer.
type userLog struct {
	lastActive time.Time
	exchanges  []models.Exchange
	mu         sync.Mutex
	deleted    bool
}

// Options configures a Store.
type Options struct {
	// MaxExchanges bounds each user's log (default: 10).
	MaxExchanges int
	// IdleTTL drops logs untouched for this long. Zero keeps logs for the process lifetime.
	IdleTTL time.Duration
}

// Store holds conversation logs keyed by user id.
// Lock order is map lock before user lock; Append and Log never hold both.
type Store struct {
	ctx     context.Context
	logs    map[string]*userLog
	cancel  context.CancelFunc
	now     func() time.Time
	opts    Options
	mu      sync.RWMutex
	stopped sync.Once
}

// NewStore creates a new conversation store.
func NewStore(opts Options) *Store {
	if opts.MaxExchanges <= 0 {
		opts.MaxExchanges = DefaultMaxExchanges
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		logs:   make(map[string]*userLog),
		opts:   opts,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.IdleTTL > 0 {
		go s.cleanupLoop()
	}
	return s
}

// MaxExchanges returns the per-user bound.
func (s *Store) MaxExchanges() int {
	return s.opts.MaxExchanges
}

// Log returns a snapshot of the user's exchanges, oldest first.
// An unknown user reads as an empty log and nothing is created.
func (s *Store) Log(userID string) []models.Exchange {
	s.mu.RLock()
	l, ok := s.logs[userID]
	s.mu.RUnlock()
	if !ok {
		return []models.Exchange{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleted {
		return []models.Exchange{}
	}
	out := make([]models.Exchange, len(l.exchanges))
	copy(out, l.exchanges)
	return out
}

// Append records an exchange, evicting the oldest entries beyond the bound.
func (s *Store) Append(userID, question, answer string, at time.Time) {
	ex := models.NewExchange(question, answer, at)
	for {
		l := s.getOrCreate(userID)

		l.mu.Lock()
		if l.deleted {
			// Cleared between lookup and lock; retry against a fresh log.
			l.mu.Unlock()
			continue
		}
		l.exchanges = append(l.exchanges, ex)
		if over := len(l.exchanges) - s.opts.MaxExchanges; over > 0 {
			l.exchanges = append(l.exchanges[:0:0], l.exchanges[over:]...)
		}
		l.lastActive = s.now()
		l.mu.Unlock()
		return
	}
}

// Clear removes the user's log. Returns true if a log existed.
func (s *Store) Clear(userID string) bool {
	s.mu.Lock()
	l, ok := s.logs[userID]
	if ok {
		delete(s.logs, userID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	l.mu.Lock()
	l.deleted = true
	l.exchanges = nil
	l.mu.Unlock()
	return true
}

// ActiveUsers returns the number of users with a live log.
func (s *Store) ActiveUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// Shutdown stops the background cleanup goroutine.
func (s *Store) Shutdown() {
	s.stopped.Do(s.cancel)
}

func (s *Store) getOrCreate(userID string) *userLog {
	s.mu.RLock()
	l, ok := s.logs[userID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.logs[userID]; ok {
		return l
	}
	l = &userLog{
		exchanges:  make([]models.Exchange, 0, s.opts.MaxExchanges),
		lastActive: s.now(),
	}
	s.logs[userID] = l
	return l
}

// cleanupLoop periodically drops idle logs.
func (s *Store) cleanupLoop() {
	interval := CleanupInterval
	if s.opts.IdleTTL < interval {
		interval = s.opts.IdleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupIdle()
		}
	}
}

// cleanupIdle removes logs that have been inactive longer than IdleTTL.
// Without an IdleTTL logs are only removed by Clear.
func (s *Store) cleanupIdle() {
	if s.opts.IdleTTL <= 0 {
		return
	}
	now := s.now()
	var dropped []string

	s.mu.Lock()
	for id, l := range s.logs {
		l.mu.Lock()
		if now.Sub(l.lastActive) > s.opts.IdleTTL {
			l.deleted = true
			l.exchanges = nil
			delete(s.logs, id)
			dropped = append(dropped, id)
		}
		l.mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range dropped {
		log.Debug().Str("user_id", id).Dur("ttl", s.opts.IdleTTL).Msg("Dropped idle conversation log")
	}
}
