package admission

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Millisecond)
}

func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	return c
}

func TestFirstConnectionIsAllowed(t *testing.T) {
	c := newController(t, Config{TimeThreshold: time.Hour})

	for i := 0; i < 50; i++ {
		addr := fmt.Sprintf("10.0.0.%d", i)
		v := c.AdmitAt(addr, ms(0))
		assert.True(t, v.Allowed, addr)
		assert.Equal(t, ReasonTracked, v.Reason)
	}
}

func TestRapidConnectionsAreThrottled(t *testing.T) {
	c := newController(t, Config{SampleSize: 3, TimeThreshold: 100 * time.Millisecond})
	const addr = "192.0.2.1"

	assert.True(t, c.AdmitAt(addr, ms(0)).Allowed)
	assert.True(t, c.AdmitAt(addr, ms(10)).Allowed)

	v := c.AdmitAt(addr, ms(20))
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonThrottled, v.Reason)
	assert.True(t, c.IsBlacklisted(addr))

	v = c.AdmitAt(addr, ms(30))
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonBlacklisted, v.Reason)
}

func TestSampleSizeBoundsThrottling(t *testing.T) {
	for s := 3; s <= 8; s++ {
		t.Run(fmt.Sprintf("sample=%d", s), func(t *testing.T) {
			c := newController(t, Config{SampleSize: s, TimeThreshold: 100 * time.Millisecond})
			const addr = "198.51.100.7"

			denied := -1
			for i := 1; i <= s; i++ {
				if !c.AdmitAt(addr, ms(i*5)).Allowed {
					denied = i
					break
				}
			}
			require.NotEqual(t, -1, denied, "never throttled")
			assert.LessOrEqual(t, denied, s)
			assert.True(t, c.IsBlacklisted(addr))
		})
	}
}

func TestSlowConnectionsAreAllowed(t *testing.T) {
	c := newController(t, Config{SampleSize: 5, TimeThreshold: 100 * time.Millisecond})
	const addr = "203.0.113.9"

	for i := 0; i < 30; i++ {
		v := c.AdmitAt(addr, ms(i*500))
		require.True(t, v.Allowed, "connection %d", i)
	}
	assert.Empty(t, c.Blacklisted())
}

func TestThresholdIsInclusive(t *testing.T) {
	c := newController(t, Config{SampleSize: 3, TimeThreshold: 100 * time.Millisecond})
	const addr = "192.0.2.50"

	assert.True(t, c.AdmitAt(addr, ms(0)).Allowed)
	assert.True(t, c.AdmitAt(addr, ms(100)).Allowed)
	assert.False(t, c.AdmitAt(addr, ms(200)).Allowed)
}

func TestHistoryIsBoundedBySampleSize(t *testing.T) {
	c := newController(t, Config{SampleSize: 4, TimeThreshold: 0})
	const addr = "192.0.2.60"

	for i := 0; i < 100; i++ {
		c.AdmitAt(addr, ms(i*1000))
	}

	c.mu.Lock()
	n := len(c.history[addr])
	c.mu.Unlock()
	assert.LessOrEqual(t, n, 4)
}

func TestWhitelistBypassesTracking(t *testing.T) {
	c := newController(t, Config{SampleSize: 3, TimeThreshold: time.Second})
	const addr = "192.0.2.2"

	c.AdmitAt(addr, ms(0))
	c.AdmitAt(addr, ms(1))
	require.False(t, c.AdmitAt(addr, ms(2)).Allowed)

	require.NoError(t, c.Whitelist(addr))
	assert.False(t, c.IsBlacklisted(addr))
	assert.True(t, c.IsWhitelisted(addr))

	for i := 3; i < 100; i++ {
		v := c.AdmitAt(addr, ms(i))
		require.True(t, v.Allowed)
		require.Equal(t, ReasonWhitelisted, v.Reason)
	}
	assert.Equal(t, 0, c.Tracked())
}

func TestUnwhitelistRemovesFromAllowSet(t *testing.T) {
	c := newController(t, Config{})
	require.NoError(t, c.Whitelist("192.0.2.3"))
	require.NoError(t, c.Blacklist("192.0.2.4"))

	require.NoError(t, c.Unwhitelist("192.0.2.3"))
	assert.Empty(t, c.Whitelisted())
	assert.Equal(t, []string{"192.0.2.4"}, c.Blacklisted())

	require.NoError(t, c.Unblacklist("192.0.2.4"))
	assert.Empty(t, c.Blacklisted())
	assert.True(t, c.AdmitAt("192.0.2.4", ms(0)).Allowed)
}

func TestOperatorOpsRejectInvalidAddresses(t *testing.T) {
	c := newController(t, Config{})

	ops := map[string]func(string) error{
		"whitelist":   c.Whitelist,
		"blacklist":   c.Blacklist,
		"unwhitelist": c.Unwhitelist,
		"unblacklist": c.Unblacklist,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op("not-an-ip"), ErrInvalidAddress)
			assert.ErrorIs(t, op("10.0.0.1:80"), ErrInvalidAddress)
		})
	}
}

func TestAddressesAreCanonicalized(t *testing.T) {
	c := newController(t, Config{})
	require.NoError(t, c.Blacklist("2001:DB8:0:0::1"))
	assert.Equal(t, []string{"2001:db8::1"}, c.Blacklisted())
	assert.False(t, c.AdmitAt("2001:db8::1", ms(0)).Allowed)
}

func TestSetsStayDisjoint(t *testing.T) {
	c := newController(t, Config{SampleSize: 2, TimeThreshold: 50 * time.Millisecond})
	rng := rand.New(rand.NewSource(42))
	addrs := []string{"10.1.0.1", "10.1.0.2", "10.1.0.3", "10.1.0.4"}

	for i := 0; i < 2000; i++ {
		a := addrs[rng.Intn(len(addrs))]
		switch rng.Intn(5) {
		case 0:
			require.NoError(t, c.Whitelist(a))
		case 1:
			require.NoError(t, c.Blacklist(a))
		case 2:
			require.NoError(t, c.Unwhitelist(a))
		case 3:
			require.NoError(t, c.Unblacklist(a))
		default:
			c.AdmitAt(a, ms(i))
		}

		allow := make(map[string]bool)
		for _, w := range c.Whitelisted() {
			allow[w] = true
		}
		for _, b := range c.Blacklisted() {
			require.False(t, allow[b], "%s on both sets after step %d", b, i)
		}
	}
}

func TestTunables(t *testing.T) {
	c := newController(t, Config{})
	assert.Equal(t, DefaultSampleSize, c.SampleSize())
	assert.Equal(t, time.Duration(0), c.TimeThreshold())

	require.NoError(t, c.SetSampleSize(9))
	require.NoError(t, c.SetTimeThreshold(250*time.Millisecond))
	assert.Equal(t, 9, c.SampleSize())
	assert.Equal(t, 250*time.Millisecond, c.TimeThreshold())

	assert.ErrorIs(t, c.SetSampleSize(0), ErrInvalidSampleSize)
	assert.ErrorIs(t, c.SetTimeThreshold(-time.Millisecond), ErrInvalidThreshold)
	assert.Equal(t, 9, c.SampleSize())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), Config{SampleSize: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidSampleSize)

	_, err = New(context.Background(), Config{TimeThreshold: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = New(context.Background(), Config{Whitelist: []string{"bogus"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNewSeedsFromStoreAndConfig(t *testing.T) {
	store := NewMemoryListStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, ListAllow, "10.0.0.1"))
	require.NoError(t, store.Put(ctx, ListDeny, "10.0.0.2"))

	c, err := New(ctx, Config{
		Whitelist: []string{"10.0.0.3"},
		Blacklist: []string{"10.0.0.1"},
	}, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.3"}, c.Whitelisted())
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, c.Blacklisted())

	allow, deny, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.3"}, allow)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, deny)
}

type failingStore struct {
	*MemoryListStore
}

func (failingStore) Put(context.Context, List, string) error {
	return errors.New("disk full")
}

func TestStoreErrorsDoNotChangeVerdicts(t *testing.T) {
	c, err := New(context.Background(), Config{SampleSize: 3, TimeThreshold: time.Second},
		failingStore{NewMemoryListStore()})
	require.NoError(t, err)

	c.AdmitAt("10.9.9.9", ms(0))
	c.AdmitAt("10.9.9.9", ms(1))
	assert.False(t, c.AdmitAt("10.9.9.9", ms(2)).Allowed)
	assert.True(t, c.IsBlacklisted("10.9.9.9"))
}

func TestAddressOf(t *testing.T) {
	assert.Equal(t, "127.0.0.1", AddressOf(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}))
	assert.Equal(t, "::1", AddressOf(&net.TCPAddr{IP: net.IPv6loopback, Port: 80}))
	assert.Equal(t, "1.2.3.4", AddressOf(&net.TCPAddr{IP: net.ParseIP("::ffff:1.2.3.4")}))
}

func TestConcurrentAdmit(t *testing.T) {
	c := newController(t, Config{SampleSize: 5, TimeThreshold: time.Millisecond})
	done := make(chan struct{})

	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				c.Admit(fmt.Sprintf("10.2.%d.%d", g, i%16))
				if i%50 == 0 {
					_ = c.SetSampleSize(3 + i%4)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	assert.LessOrEqual(t, c.Tracked(), 8*16)
}

func TestSampleSizeDecreaseEvictsOneRecordPerAttempt(t *testing.T) {
	c := newController(t, Config{SampleSize: 5, TimeThreshold: 10 * time.Millisecond})
	const addr = "192.0.2.61"

	window := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.history[addr])
	}

	for i := 0; i < 4; i++ {
		require.True(t, c.AdmitAt(addr, ms(i*1000)).Allowed)
	}
	require.Equal(t, 4, window())

	require.NoError(t, c.SetSampleSize(1))

	// Every stored record is now over the sample size; only the newest
	// of them is dropped before the attempt is appended
	v := c.AdmitAt(addr, ms(4000))
	assert.True(t, v.Allowed)
	assert.Equal(t, 4, window())

	v = c.AdmitAt(addr, ms(5000))
	assert.True(t, v.Allowed)
	assert.Equal(t, 4, window())
}
