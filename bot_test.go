package main

import (
	"sync"
	"testing"
	"time"

	csgoProto "github.com/Philipp15b/go-steam/v3/csgo/protocol/protobuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
	"google.golang.org/protobuf/proto"
)

// fakeClock gives tests explicit control over which scheduled timer
// fires, avoiding races between (e.g.) a TTL timeout and an in-flight
// reply. Grounded on the ports.Clock injection of
// lnilluv-openai-accounts-cli's session_continuity_service.go, extended
// with a controllable After() since the Bot (unlike that service) owns
// several concurrent cancellable timers.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []chan time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.pending = append(c.pending, ch)
	c.mu.Unlock()
	return ch
}

// fireAll fires every timer currently outstanding at the current fake
// time, simulating "all pending timers reached their deadline"; it does
// not advance the clock.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	now := c.now
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- now
	}
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSession is an in-memory SessionClient double driven directly by
// tests, standing in for a real Steam/GC connection.
type fakeSession struct {
	mu          sync.Mutex
	events      chan SessionEvent
	closed      bool
	relogCalls  int
	inspectArgs []uint64 // requested asset ids, in order
}

func newFakeSession(proxy.Dialer) SessionClient {
	return &fakeSession{events: make(chan SessionEvent, 16)}
}

func (f *fakeSession) LogOn(Credentials) error { return nil }
func (f *fakeSession) LogOff()                 {}
func (f *fakeSession) Relog() error {
	f.mu.Lock()
	f.relogCalls++
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) SetPlayedGames([]uint32, bool)          {}
func (f *fakeSession) RequestFreeLicense([]uint32) error      { return nil }
func (f *fakeSession) OwnsApp(uint32) (bool, error)            { return true, nil }
func (f *fakeSession) InspectItem(_, assetID, _ uint64) error {
	f.mu.Lock()
	f.inspectArgs = append(f.inspectArgs, assetID)
	f.mu.Unlock()
	return nil
}
func (f *fakeSession) Events() <-chan SessionEvent { return f.events }
func (f *fakeSession) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	f.mu.Unlock()
}

func (f *fakeSession) emit(ev SessionEvent) { f.events <- ev }

func testConfig() *Config {
	return &Config{
		MaxLoginRetries:        5,
		LoginRetryDelay:        5 * time.Second,
		MaxGCReconnectAttempts: 10,
		GCReconnectDelay:       10 * time.Second,
		RequestTTL:             8 * time.Second,
		RequestDelay:           1 * time.Second,
		HealthCheckInterval:    time.Minute,
		RefreshInterval:        30 * time.Minute,
		RefreshJitter:          4 * time.Minute,
		GCInactivityCeiling:    10 * time.Minute,
		StartupBarrier:         5 * time.Minute,
	}
}

func newTestBot(t *testing.T, clock Clock) (*Bot, *fakeSession) {
	t.Helper()
	var session *fakeSession
	var mu sync.Mutex
	bot := NewBot(0, Account{Username: "tester"}, testConfig(), clock, DefaultRetryClassifier, NoneProxySelector{}, nil,
		func(d proxy.Dialer) SessionClient {
			mu.Lock()
			defer mu.Unlock()
			s := newFakeSession(d).(*fakeSession)
			session = s
			return s
		}, nil)
	bot.Start()
	t.Cleanup(bot.Destroy)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return session != nil
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	return bot, session
}

func TestBot_ReachesReadyOnFullLoginSequence(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	bot, session := newTestBot(t, clock)

	session.emit(SessionEvent{Kind: EventLoggedOn})
	session.emit(SessionEvent{Kind: EventOwnershipCached})
	session.emit(SessionEvent{Kind: EventConnectedToGC})

	assert.Eventually(t, bot.IsReady, time.Second, time.Millisecond)
}

func TestBot_GCLostTriggersReconnectSchedule(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	bot, session := newTestBot(t, clock)

	session.emit(SessionEvent{Kind: EventLoggedOn})
	session.emit(SessionEvent{Kind: EventOwnershipCached})
	session.emit(SessionEvent{Kind: EventConnectedToGC})
	require.Eventually(t, bot.IsReady, time.Second, time.Millisecond)

	session.emit(SessionEvent{Kind: EventDisconnectedFromGC})
	assert.Eventually(t, func() bool { return bot.stateSnapshot() == StateGCLost }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return bot.Snapshot().GCAttempt == 1 }, time.Second, time.Millisecond)
}

func TestBot_LoginFailureRetriesThenDies(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cfg := testConfig()
	cfg.MaxLoginRetries = 2

	var session *fakeSession
	var mu sync.Mutex
	bot := NewBot(0, Account{Username: "flaky"}, cfg, clock, DefaultRetryClassifier, NoneProxySelector{}, nil,
		func(d proxy.Dialer) SessionClient {
			mu.Lock()
			defer mu.Unlock()
			s := newFakeSession(d).(*fakeSession)
			session = s
			return s
		}, nil)
	bot.Start()
	t.Cleanup(bot.Destroy)

	for i := 0; i < cfg.MaxLoginRetries+1; i++ {
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return session != nil
		}, time.Second, time.Millisecond)

		mu.Lock()
		s := session
		mu.Unlock()
		s.emit(SessionEvent{Kind: EventDisconnected, DisconnectMsg: "ServiceUnavailable"})

		if i < cfg.MaxLoginRetries {
			clock.fireAll() // release the login-retry backoff timer
			mu.Lock()
			session = nil
			mu.Unlock()
		}
	}

	assert.Eventually(t, func() bool { return bot.stateSnapshot() == StateDead }, time.Second, time.Millisecond)
}

func TestBot_SendInspectFailsFastWhenNotReady(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	bot, _ := newTestBot(t, clock)

	info, err := bot.SendInspect(InspectLink{S: "1", A: "2", D: "3"})
	assert.Nil(t, info)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBot_SendInspectDeliversDecodedReply(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	bot, session := newTestBot(t, clock)

	session.emit(SessionEvent{Kind: EventLoggedOn})
	session.emit(SessionEvent{Kind: EventOwnershipCached})
	session.emit(SessionEvent{Kind: EventConnectedToGC})
	require.Eventually(t, bot.IsReady, time.Second, time.Millisecond)

	raw, err := proto.Marshal(&csgoProto.CMsgGCCStrike15V2_Client2GCEconPreviewDataBlockResponse{
		Iteminfo: &csgoProto.CEconItemPreviewDataBlock{
			Itemid:     proto.Uint64(42),
			Defindex:   proto.Uint32(7),
			Paintwear:  proto.Uint32(0),
			Paintseed:  proto.Uint32(5),
			Accountid:  proto.Uint32(123),
		},
	})
	require.NoError(t, err)

	resultCh := make(chan struct {
		info *ItemInfo
		err  error
	}, 1)
	go func() {
		info, err := bot.SendInspect(InspectLink{S: "123", A: "42", D: "999"})
		resultCh <- struct {
			info *ItemInfo
			err  error
		}{info, err}
	}()

	require.Eventually(t, func() bool { return bot.stateSnapshot() == StateBusy }, time.Second, time.Millisecond)
	session.emit(SessionEvent{Kind: EventInspectItemInfo, RawItemInfo: raw})

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.NotNil(t, r.info)
		assert.Equal(t, uint64(42), r.info.ItemID)
		assert.Equal(t, "123", r.info.S)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inspect reply")
	}
}

func TestBot_SendInspectTimesOutOnTTL(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	bot, session := newTestBot(t, clock)

	session.emit(SessionEvent{Kind: EventLoggedOn})
	session.emit(SessionEvent{Kind: EventOwnershipCached})
	session.emit(SessionEvent{Kind: EventConnectedToGC})
	require.Eventually(t, bot.IsReady, time.Second, time.Millisecond)

	resultCh := make(chan error, 1)
	go func() {
		_, err := bot.SendInspect(InspectLink{S: "1", A: "2", D: "3"})
		resultCh <- err
	}()

	require.Eventually(t, func() bool { return bot.stateSnapshot() == StateBusy }, time.Second, time.Millisecond)
	clock.fireAll() // fires the TTL timer; no reply was ever delivered

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, ErrTtlExceeded)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ttl error")
	}
}

func TestLoginBackoff_DoublesPerAttempt(t *testing.T) {
	t.Parallel()
	base := 5 * time.Second
	assert.Equal(t, 5*time.Second, loginBackoff(1, base))
	assert.Equal(t, 10*time.Second, loginBackoff(2, base))
	assert.Equal(t, 20*time.Second, loginBackoff(3, base))
}

func TestGCBackoff_DoublesPerAttempt(t *testing.T) {
	t.Parallel()
	base := 10 * time.Second
	assert.Equal(t, 10*time.Second, gcBackoff(1, base))
	assert.Equal(t, 20*time.Second, gcBackoff(2, base))
	assert.Equal(t, 40*time.Second, gcBackoff(3, base))
}
