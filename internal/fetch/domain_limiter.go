package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterSettings configures token-bucket style rate limiting per host.
type RateLimiterSettings struct {
	Requests int
	Window   time.Duration
}

// hostState is the politeness bookkeeping kept per distinct host: the last
// time a request was released to it, and (if rate limiting is enabled) its
// own token bucket. Keeping both under one entry means eviction only ever
// has to touch one map.
type hostState struct {
	lastRequest time.Time
	bucket      *rate.Limiter
}

// maxTrackedHosts caps how many distinct hosts DomainLimiter will remember.
// A crawl that fans out across an adversarial number of distinct hosts
// (redirect chains through throwaway subdomains, link farms, …) must not
// grow this bookkeeping without bound — the frontier is the only structure
// the coordinator promises unbounded growth for (§ frontier, bounded only by
// available memory); everything else, including this limiter, stays capped.
const maxTrackedHosts = 4096

// DomainLimiter enforces per-domain politeness rules combining a fixed
// delay and an optional rate limit, with bounded memory for the number of
// hosts it will track concurrently.
type DomainLimiter struct {
	delay       time.Duration
	rate        RateLimiterSettings
	rateEnabled bool

	mu    sync.Mutex
	hosts map[string]*hostState
}

// NewDomainLimiter creates a limiter with per-domain delay and optional rate limiting.
func NewDomainLimiter(delay time.Duration, rateCfg RateLimiterSettings) *DomainLimiter {
	limiter := &DomainLimiter{delay: delay}
	if delay > 0 {
		limiter.hosts = make(map[string]*hostState)
	}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		limiter.rateEnabled = true
		limiter.rate = rateCfg
		if limiter.hosts == nil {
			limiter.hosts = make(map[string]*hostState)
		}
	}
	return limiter
}

// Wait blocks until politeness constraints for the host are satisfied.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	if d.delay <= 0 && !d.rateEnabled {
		return nil
	}

	var sleep time.Duration
	var bucket *rate.Limiter
	now := time.Now()

	d.mu.Lock()
	state := d.stateLocked(host)
	if d.delay > 0 {
		if rest := state.lastRequest.Add(d.delay).Sub(now); rest > 0 {
			sleep = rest
		}
	}
	if d.rateEnabled {
		if state.bucket == nil {
			state.bucket = newHostBucket(d.rate)
		}
		bucket = state.bucket
	}
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if bucket != nil {
		if err := bucket.Wait(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	state.lastRequest = time.Now()
	d.mu.Unlock()
	return nil
}

// stateLocked returns the bookkeeping entry for host, creating it (and
// evicting the stalest entry first if the tracked set is already at
// capacity) if this is the first time the host has been seen. Callers must
// hold d.mu.
func (d *DomainLimiter) stateLocked(host string) *hostState {
	if state, ok := d.hosts[host]; ok {
		return state
	}
	if len(d.hosts) >= maxTrackedHosts {
		d.evictStalestLocked()
	}
	state := &hostState{}
	d.hosts[host] = state
	return state
}

// evictStalestLocked drops the least-recently-used host entry so a crawl
// spanning unboundedly many hosts can't grow this map forever.
func (d *DomainLimiter) evictStalestLocked() {
	var stalestHost string
	var stalestAt time.Time
	first := true
	for host, state := range d.hosts {
		if first || state.lastRequest.Before(stalestAt) {
			stalestHost, stalestAt = host, state.lastRequest
			first = false
		}
	}
	if stalestHost != "" {
		delete(d.hosts, stalestHost)
	}
}

func newHostBucket(cfg RateLimiterSettings) *rate.Limiter {
	interval := cfg.Window / time.Duration(cfg.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	burst := cfg.Requests
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}
