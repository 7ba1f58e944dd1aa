/*
Package ratelimit counts actions per key in fixed windows. Rates are written
like "10/m" (ten per minute), "3/s" or "100/h".
*/
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.handmade.network/hmn/forum/src/oops"
)

type Rate struct {
	Limit  int
	Window time.Duration
}

func (r Rate) String() string {
	unit := "s"
	switch r.Window {
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	case 24 * time.Hour:
		unit = "d"
	}
	return strconv.Itoa(r.Limit) + "/" + unit
}

func ParseRate(s string) (Rate, error) {
	countStr, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, oops.New(nil, "rate '%s' is missing a '/'", s)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return Rate{}, oops.New(err, "rate '%s' has an invalid count", s)
	}

	var window time.Duration
	switch unit {
	case "s":
		window = time.Second
	case "m":
		window = time.Minute
	case "h":
		window = time.Hour
	case "d":
		window = 24 * time.Hour
	default:
		return Rate{}, oops.New(nil, "rate '%s' has an unknown unit '%s'", s, unit)
	}

	return Rate{Limit: count, Window: window}, nil
}

func MustParseRate(s string) Rate {
	rate, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return rate
}

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func decide(count int, rate Rate, resetAt time.Time) Decision {
	remaining := rate.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rate.Limit,
		Count:     count,
		Limit:     rate.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Every call to Allow counts as one attempt, allowed or not.
type Limiter interface {
	Allow(ctx context.Context, key string, rate Rate) Decision
}

type InMemoryLimiter struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]entry
}

type entry struct {
	count   int
	resetAt time.Time
}

var _ Limiter = &InMemoryLimiter{}

func NewInMemory() *InMemoryLimiter {
	return &InMemoryLimiter{
		now:   time.Now,
		items: make(map[string]entry),
	}
}

func (l *InMemoryLimiter) Allow(ctx context.Context, key string, rate Rate) Decision {
	now := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}

	curr, ok := l.items[key]
	if !ok {
		curr = entry{resetAt: now.Add(rate.Window)}
	}
	curr.count++
	l.items[key] = curr

	return decide(curr.count, rate, curr.resetAt)
}
