// Package admission decides whether an incoming connection may be served.
//
// Addresses on the allow set always pass and addresses on the deny set are
// always refused. Every other connection is fed to a per-address tracker
// that keeps a short sliding window of recent attempts; when the average gap
// between attempts drops to the configured threshold or below, the address
// is moved to the deny set.
package admission

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/sws/internal/logger"
)

// Defaults for the tracker tunables.
const (
	DefaultSampleSize    = 5
	DefaultTimeThreshold = 100 * time.Millisecond
)

// Reason explains a Verdict.
type Reason string

const (
	// ReasonWhitelisted: the address is on the allow set.
	ReasonWhitelisted Reason = "whitelisted"

	// ReasonBlacklisted: the address was already on the deny set.
	ReasonBlacklisted Reason = "blacklisted"

	// ReasonTracked: the tracker saw nothing suspicious.
	ReasonTracked Reason = "tracked"

	// ReasonThrottled: the tracker just moved the address to the deny set.
	ReasonThrottled Reason = "throttled"
)

// Verdict is the outcome of an admission check.
type Verdict struct {
	Allowed bool
	Reason  Reason
}

// Config holds the initial controller settings.
type Config struct {
	// SampleSize is the number of attempts a record participates in before
	// it is evicted. Zero means DefaultSampleSize.
	SampleSize int

	// TimeThreshold is the average gap at or below which an address is
	// throttled. Compared with millisecond precision.
	TimeThreshold time.Duration

	// Whitelist and Blacklist are added to the sets on startup, on top of
	// whatever the ListStore already holds. A blacklist entry wins over a
	// whitelist entry for the same address.
	Whitelist []string
	Blacklist []string
}

// record is one past attempt from an address.
type record struct {
	at    time.Time
	count int
	gap   int64 // milliseconds, -1 until the next attempt arrives
}

// Controller owns the allow/deny sets, the per-address history and the
// tunables. A single mutex guards all of them, so every decision is atomic
// with respect to other decisions and to operator actions.
type Controller struct {
	mu        sync.Mutex
	allow     map[string]struct{}
	deny      map[string]struct{}
	history   map[string][]*record
	sample    int
	threshold time.Duration

	store ListStore
	now   func() time.Time
}

// New creates a controller backed by store and seeds it with the persisted
// sets plus the ones in cfg. A nil store keeps the sets in memory only.
func New(ctx context.Context, cfg Config, store ListStore) (*Controller, error) {
	if store == nil {
		store = NewMemoryListStore()
	}

	sample := cfg.SampleSize
	if sample == 0 {
		sample = DefaultSampleSize
	}
	if sample < 1 {
		return nil, ErrInvalidSampleSize
	}
	if cfg.TimeThreshold < 0 {
		return nil, ErrInvalidThreshold
	}

	c := &Controller{
		allow:     make(map[string]struct{}),
		deny:      make(map[string]struct{}),
		history:   make(map[string][]*record),
		sample:    sample,
		threshold: cfg.TimeThreshold,
		store:     store,
		now:       time.Now,
	}

	allow, deny, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load address lists: %w", err)
	}
	for _, a := range allow {
		c.allow[a] = struct{}{}
	}
	for _, a := range deny {
		delete(c.allow, a)
		c.deny[a] = struct{}{}
	}

	for _, a := range cfg.Whitelist {
		if err := c.Whitelist(a); err != nil {
			return nil, fmt.Errorf("whitelist %q: %w", a, err)
		}
	}
	for _, a := range cfg.Blacklist {
		if err := c.Blacklist(a); err != nil {
			return nil, fmt.Errorf("blacklist %q: %w", a, err)
		}
	}

	logger.Debug("Admission controller ready: sample_size=%d threshold=%s allow=%d deny=%d",
		c.sample, c.threshold, len(c.allow), len(c.deny))
	return c, nil
}

// AddressOf returns the canonical IP of a network address, without port.
// Non-IP addresses are returned as reported by String.
func AddressOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}

// normalize parses addr as an IP and returns its canonical form.
func normalize(addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("%q: %w", addr, ErrInvalidAddress)
	}
	return ip.String(), nil
}

// Admit decides on a connection from addr arriving now.
func (c *Controller) Admit(addr string) Verdict {
	return c.AdmitAt(addr, c.now())
}

// AdmitAt decides on a connection from addr arriving at t.
//
// For an address on neither set, every stored record of the address is aged
// by one attempt. A record that has now seen more than SampleSize attempts
// contributes nothing, and the last such record is evicted; after a sample
// size decrease the others leave one per later attempt. The gap from the
// record that sees its second attempt becomes the new record's gap, and the
// stored gaps of the surviving records are averaged in. The running count
// starts at one and the newest gap is added to the sum without incrementing
// it.
func (c *Controller) AdmitAt(addr string, t time.Time) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.allow[addr]; ok {
		return Verdict{Allowed: true, Reason: ReasonWhitelisted}
	}
	if _, ok := c.deny[addr]; ok {
		return Verdict{Allowed: false, Reason: ReasonBlacklisted}
	}

	cand := &record{at: t, count: 1, gap: -1}
	var (
		sum        int64
		considered int64 = 1
	)

	window := c.history[addr]
	evict := -1
	for i, r := range window {
		gap := t.Sub(r.at).Milliseconds()
		r.count++
		if r.count > c.sample {
			evict = i
			continue
		}
		if r.count == 2 {
			cand.gap = gap
			sum += gap
		}
		if r.gap != -1 {
			sum += r.gap
			considered++
		}
	}
	if evict >= 0 {
		copy(window[evict:], window[evict+1:])
		window[len(window)-1] = nil
		window = window[:len(window)-1]
	}
	c.history[addr] = append(window, cand)

	avg := sum / considered
	if considered != 1 && avg <= c.threshold.Milliseconds() {
		c.moveLocked(addr, ListDeny)
		logger.Info("Address %s throttled: average gap %dms over %d samples", addr, avg, considered)
		return Verdict{Allowed: false, Reason: ReasonThrottled}
	}
	return Verdict{Allowed: true, Reason: ReasonTracked}
}

// moveLocked puts addr on list, takes it off the other one and drops its
// tracking history. Persistence failures are logged only.
func (c *Controller) moveLocked(addr string, list List) {
	from, to := c.deny, c.allow
	fromList := ListDeny
	if list == ListDeny {
		from, to = c.allow, c.deny
		fromList = ListAllow
	}

	delete(c.history, addr)

	if _, ok := from[addr]; ok {
		delete(from, addr)
		if err := c.store.Delete(context.Background(), fromList, addr); err != nil {
			logger.Warn("Failed to remove %s from persisted %s list: %v", addr, fromList, err)
		}
	}
	if _, ok := to[addr]; !ok {
		to[addr] = struct{}{}
		if err := c.store.Put(context.Background(), list, addr); err != nil {
			logger.Warn("Failed to persist %s on %s list: %v", addr, list, err)
		}
	}
}

// removeLocked takes addr off list.
func (c *Controller) removeLocked(addr string, list List) {
	set := c.allow
	if list == ListDeny {
		set = c.deny
	}
	if _, ok := set[addr]; !ok {
		return
	}
	delete(set, addr)
	if err := c.store.Delete(context.Background(), list, addr); err != nil {
		logger.Warn("Failed to remove %s from persisted %s list: %v", addr, list, err)
	}
}

// Whitelist adds addr to the allow set, removing it from the deny set.
func (c *Controller) Whitelist(addr string) error {
	a, err := normalize(addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(a, ListAllow)
	return nil
}

// Blacklist adds addr to the deny set, removing it from the allow set.
func (c *Controller) Blacklist(addr string) error {
	a, err := normalize(addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveLocked(a, ListDeny)
	return nil
}

// Unwhitelist removes addr from the allow set.
func (c *Controller) Unwhitelist(addr string) error {
	a, err := normalize(addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(a, ListAllow)
	return nil
}

// Unblacklist removes addr from the deny set.
func (c *Controller) Unblacklist(addr string) error {
	a, err := normalize(addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(a, ListDeny)
	return nil
}

// SetSampleSize changes the sample size for subsequent decisions.
func (c *Controller) SetSampleSize(n int) error {
	if n < 1 {
		return ErrInvalidSampleSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = n
	return nil
}

// SetTimeThreshold changes the throttling threshold for subsequent decisions.
func (c *Controller) SetTimeThreshold(d time.Duration) error {
	if d < 0 {
		return ErrInvalidThreshold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = d
	return nil
}

func (c *Controller) SampleSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sample
}

func (c *Controller) TimeThreshold() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Whitelisted returns a sorted snapshot of the allow set.
func (c *Controller) Whitelisted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.allow)
}

// Blacklisted returns a sorted snapshot of the deny set.
func (c *Controller) Blacklisted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.deny)
}

// IsWhitelisted reports whether addr is on the allow set.
func (c *Controller) IsWhitelisted(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.allow[addr]
	return ok
}

// IsBlacklisted reports whether addr is on the deny set.
func (c *Controller) IsBlacklisted(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deny[addr]
	return ok
}

// Tracked returns the number of addresses with tracking history.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Close closes the underlying ListStore.
func (c *Controller) Close() error {
	return c.store.Close()
}
