package server

import (
	"sync"
	"time"
)

// Decision is the outcome of a usage check.
type Decision struct {
	Allowed bool `json:"allowed"`
	Current int  `json:"current"`
	Limit   int  `json:"limit"`
}

// Limiter counts conversational turns per user per UTC day in memory.
// Counters reset when the day rolls over; a limit <= 0 disables the
// check.
type Limiter struct {
	mu    sync.Mutex
	limit int
	day   string
	used  map[string]int
	now   func() time.Time
}

func NewLimiter(turnsPerDay int) *Limiter {
	return &Limiter{
		limit: turnsPerDay,
		used:  make(map[string]int),
		now:   time.Now,
	}
}

// CheckLimit consumes one turn for the user when allowed. A rejected
// check consumes nothing.
func (l *Limiter) CheckLimit(userID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.now().UTC().Format("2006-01-02")
	if today != l.day {
		l.day = today
		l.used = make(map[string]int)
	}

	current := l.used[userID]
	if l.limit > 0 && current >= l.limit {
		return Decision{Allowed: false, Current: current, Limit: l.limit}
	}
	l.used[userID] = current + 1
	return Decision{Allowed: true, Current: current + 1, Limit: l.limit}
}
