package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// State is one of the finite bot states of SPEC_FULL §3/§4.3.
type State string

const (
	StateInit         State = "INIT"
	StateLoggingIn    State = "LOGGING_IN"
	StateLoggedOn     State = "LOGGED_ON"
	StateGCConnecting State = "GC_CONNECTING"
	StateReady        State = "READY"
	StateBusy         State = "BUSY"
	StateGCLost       State = "GC_LOST"
	StateDead         State = "DEAD"
)

// Clock abstracts wall-clock reads and timers so login backoff, GC
// backoff, TTL, refresh jitter, and health-check timing are
// deterministically testable (grounded on the ports.Clock injection
// pattern of lnilluv-openai-accounts-cli's session_continuity_service.go).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                       { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type botMsgKind int

const (
	msgLogin botMsgKind = iota
	msgSendInspect
	msgDestroy
	msgSessionEvent
	msgTimer
)

type timerKind int

const (
	timerLoginRetry timerKind = iota
	timerGCReconnect
	timerRefresh
	timerHealth
	timerTTL
	timerBusyRelease
	timerGCHandshakeToggle
)

type botMsg struct {
	kind botMsgKind

	link    InspectLink
	deliver func(*ItemInfo, error)

	event      SessionEvent
	sessionGen uint64

	timer    timerKind
	timerGen uint64
}

// Bot drives one account's full lifecycle per SPEC_FULL §4.3: login
// with backoff, Steam Guard TOTP, GC attach, scheduled refresh, health
// monitoring, and reconnection. All state is owned exclusively by the
// run loop goroutine; other goroutines only ever post to msgs or read
// the mutex-guarded snapshot fields.
type Bot struct {
	index   int
	account Account
	cfg     *Config
	clock   Clock
	classifier RetryClassifier
	selector   ProxySelector
	metrics    *Metrics
	newSession func(proxy.Dialer) SessionClient
	onReadyChange func(ready bool)

	msgs chan botMsg
	done chan struct{}
	closeOnce sync.Once

	session    SessionClient
	sessionGen uint64

	snapMu sync.RWMutex
	state  State
	loginAttempt int
	gcAttempt    int
	proxyName    string

	loggedOn       bool
	gcSessionHeld  bool
	relogin        bool
	relogDeferred  bool
	lastGcActivity time.Time
	pending        *PendingRequest

	loginRetryGen    uint64
	gcReconnectGen   uint64
	gcReconnectArmed bool // a reconnect attempt is scheduled or in its handshake toggle
	refreshGen       uint64
	ttlGen           uint64
	busyReleaseGen   uint64
	healthGen        uint64
}

// NewBot constructs a bot for account at the given pool index. newSession
// defaults to NewSteamSessionClient when nil.
func NewBot(index int, account Account, cfg *Config, clock Clock, classifier RetryClassifier, selector ProxySelector, metrics *Metrics, newSession func(proxy.Dialer) SessionClient, onReadyChange func(bool)) *Bot {
	if clock == nil {
		clock = realClock{}
	}
	if classifier == nil {
		classifier = DefaultRetryClassifier
	}
	if newSession == nil {
		newSession = NewSteamSessionClient
	}
	return &Bot{
		index:         index,
		account:       account,
		cfg:           cfg,
		clock:         clock,
		classifier:    classifier,
		selector:      selector,
		metrics:       metrics,
		newSession:    newSession,
		onReadyChange: onReadyChange,
		msgs:          make(chan botMsg, 64),
		done:          make(chan struct{}),
		state:         StateInit,
	}
}

// Start launches the bot's event loop and kicks off the first login.
func (b *Bot) Start() {
	go b.run()
	b.postMsg(botMsg{kind: msgLogin})
	b.postTimer(timerHealth, b.cfg.HealthCheckInterval, &b.healthGen)
}

func (b *Bot) postMsg(m botMsg) {
	select {
	case b.msgs <- m:
	case <-b.done:
	}
}

func (b *Bot) run() {
	for {
		select {
		case m := <-b.msgs:
			b.handle(m)
			if b.stateSnapshot() == StateDead {
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bot) handle(m botMsg) {
	switch m.kind {
	case msgLogin:
		b.doLogin()
	case msgSendInspect:
		b.doSendInspect(m.link, m.deliver)
	case msgDestroy:
		b.doDestroy()
	case msgSessionEvent:
		if m.sessionGen == b.sessionGen {
			b.handleSessionEvent(m.event)
		}
	case msgTimer:
		b.handleTimer(m.timer, m.timerGen)
	}
}

// --- public API ---

// Login (re)initializes the session. Idempotent: any in-flight session
// is torn down first (SPEC_FULL §4.3 step 1).
func (b *Bot) Login() { b.postMsg(botMsg{kind: msgLogin}) }

// SendInspect forwards link to the bot's SessionClient and blocks until
// the GC replies, the TTL expires, or the bot is not ready.
func (b *Bot) SendInspect(link InspectLink) (*ItemInfo, error) {
	result := make(chan struct {
		info *ItemInfo
		err  error
	}, 1)
	deliver := func(info *ItemInfo, err error) {
		result <- struct {
			info *ItemInfo
			err  error
		}{info, err}
	}
	select {
	case b.msgs <- botMsg{kind: msgSendInspect, link: link, deliver: deliver}:
	case <-b.done:
		return nil, ErrShuttingDown
	}
	r := <-result
	return r.info, r.err
}

func (b *Bot) IsReady() bool { return b.stateSnapshot() == StateReady }
func (b *Bot) IsBusy() bool  { return b.stateSnapshot() == StateBusy }

// Snapshot reports the per-bot status exposed by the Controller.
func (b *Bot) Snapshot() BotSnapshot {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return BotSnapshot{
		Username:     b.account.Username,
		State:        string(b.state),
		Ready:        b.state == StateReady,
		Busy:         b.state == StateBusy,
		LoginAttempt: b.loginAttempt,
		GCAttempt:    b.gcAttempt,
		ProxyName:    b.proxyName,
	}
}

// Destroy cancels all timers and tears down the session (SPEC_FULL §4.3 Destroy).
func (b *Bot) Destroy() {
	b.closeOnce.Do(func() { close(b.done) })
	b.postMsg(botMsg{kind: msgDestroy})
}

func (b *Bot) stateSnapshot() State {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return b.state
}

// setState updates state and fires the edge-triggered ready callback
// (SPEC_FULL §9 event-emitter ready latch).
func (b *Bot) setState(s State) {
	b.snapMu.Lock()
	wasReady := b.state == StateReady
	b.state = s
	isReady := b.state == StateReady
	b.snapMu.Unlock()

	if wasReady != isReady && b.onReadyChange != nil {
		b.onReadyChange(isReady)
	}
}

func (b *Bot) setLoginAttempt(n int) {
	b.snapMu.Lock()
	b.loginAttempt = n
	b.snapMu.Unlock()
}

func (b *Bot) setGCAttempt(n int) {
	b.snapMu.Lock()
	b.gcAttempt = n
	b.snapMu.Unlock()
}

func (b *Bot) setProxyName(name string) {
	b.snapMu.Lock()
	b.proxyName = name
	b.snapMu.Unlock()
}

// --- login ---

func (b *Bot) doLogin() {
	b.loginRetryGen++
	b.setState(StateLoggingIn)

	binding, _ := b.selector.Pick(b.index, b.account.Username)
	dialer, err := DialerForBinding(binding)
	if err != nil {
		botLog(b.account.Username).WithError(err).Warn("proxy dial setup failed, falling back to direct connection")
		dialer = nil
	}
	if binding != nil {
		b.setProxyName(binding.Name)
	} else {
		b.setProxyName("")
	}

	if b.session != nil {
		b.session.Close()
	}
	b.sessionGen++
	gen := b.sessionGen
	b.session = b.newSession(dialer)
	b.forwardSessionEvents(b.session, gen)

	code, isTwoFactor, err := resolveAuthCode(b.account.SharedSecret)
	if err != nil {
		botLog(b.account.Username).WithError(err).Error("totp code generation failed")
	}
	creds := Credentials{
		AccountName:      b.account.Username,
		Password:         b.account.Password,
		RememberPassword: true,
	}
	if isTwoFactor {
		creds.TwoFactorCode = code
	} else {
		creds.AuthCode = code
	}
	_ = b.session.LogOn(creds)
}

func (b *Bot) forwardSessionEvents(session SessionClient, gen uint64) {
	go func() {
		events := session.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				b.postMsg(botMsg{kind: msgSessionEvent, event: ev, sessionGen: gen})
			case <-b.done:
				return
			}
		}
	}()
}

func (b *Bot) handleSessionEvent(ev SessionEvent) {
	switch ev.Kind {
	case EventLoggedOn:
		b.onLoggedOn()
	case EventOwnershipCached:
		b.onOwnershipCached()
	case EventConnectedToGC:
		b.onConnectedToGC()
	case EventDisconnectedFromGC:
		b.onDisconnectedFromGC()
	case EventDisconnected:
		b.onDisconnected(ev)
	case EventInspectItemInfo:
		b.onItemInfo(ev.RawItemInfo)
	case EventError:
		botLog(b.account.Username).WithError(ev.Err).Warn("session error event")
	}
}

func (b *Bot) onLoggedOn() {
	b.setLoginAttempt(0) // I4
	b.loggedOn = true
	b.setState(StateLoggedOn)
	b.metrics.RecordLogin("success")
	b.session.SetPlayedGames(nil, false)
}

func (b *Bot) onOwnershipCached() {
	if !b.relogin {
		owns, _ := b.session.OwnsApp(CS2AppID)
		if !owns {
			if err := b.session.RequestFreeLicense([]uint32{CS2AppID}); err != nil {
				botLog(b.account.Username).WithError(err).Warn("free license grant failed; next health cycle may retry")
				b.relogin = false // cleared at end of loggedOn handling (Open Question 2)
				return
			}
		}
	}
	b.session.SetPlayedGames([]uint32{CS2AppID}, true)
	b.setState(StateGCConnecting)
	b.relogin = false // Open Question 2: always cleared at end of loggedOn handling
}

func (b *Bot) onConnectedToGC() {
	b.setGCAttempt(0) // I4
	b.gcReconnectGen++
	b.gcReconnectArmed = false
	b.gcSessionHeld = true
	b.lastGcActivity = b.clock.Now()
	b.setState(StateReady)
	b.scheduleRefreshOnce()
}

func (b *Bot) onDisconnectedFromGC() {
	b.setState(StateGCLost)
	b.scheduleGCReconnect()
}

func (b *Bot) onDisconnected(ev SessionEvent) {
	if b.stateSnapshot() == StateLoggingIn {
		b.classifyLoginFailure(fmt.Errorf("disconnected during login: %s", ev.DisconnectMsg))
		return
	}
	// Steam-level disconnect after a prior successful login: the
	// SessionClient is expected to auto-reconnect; if it does not, the
	// health monitor (60s) notices loggedOn==false and re-triggers login.
	botLog(b.account.Username).Warn("disconnected from steam")
	b.loggedOn = false
	b.gcSessionHeld = false
}

func (b *Bot) classifyLoginFailure(err error) {
	b.snapMu.RLock()
	attempt := b.loginAttempt
	b.snapMu.RUnlock()

	if b.classifier(err) && attempt < b.cfg.MaxLoginRetries {
		attempt++
		b.setLoginAttempt(attempt)
		delay := loginBackoff(attempt, b.cfg.LoginRetryDelay)
		b.metrics.RecordLogin("retry")
		b.scheduleLoginRetry(delay)
		return
	}
	b.metrics.RecordLogin("failed")
	botLog(b.account.Username).WithError(err).Error("login failed, bot is dead")
	b.setState(StateDead)
}

// loginBackoff implements SPEC_FULL §4.3 step 2 / §5: base · 2^(n-1).
func loginBackoff(attempt int, base time.Duration) time.Duration {
	return base * time.Duration(uint64(1)<<uint(attempt-1))
}

// gcBackoff implements the GC reconnection backoff of SPEC_FULL §4.3.
func gcBackoff(attempt int, base time.Duration) time.Duration {
	return base * time.Duration(uint64(1)<<uint(attempt-1))
}

func (b *Bot) scheduleLoginRetry(delay time.Duration) {
	b.loginRetryGen++
	gen := b.loginRetryGen
	b.scheduleTimer(timerLoginRetry, delay, gen)
}

func (b *Bot) scheduleGCReconnect() {
	b.snapMu.RLock()
	attempt := b.gcAttempt
	b.snapMu.RUnlock()

	if attempt >= b.cfg.MaxGCReconnectAttempts {
		botLog(b.account.Username).Error("exhausted gc reconnect attempts")
		return
	}
	attempt++
	b.setGCAttempt(attempt)
	delay := gcBackoff(attempt, b.cfg.GCReconnectDelay)
	b.metrics.RecordGCReconnect()
	b.gcReconnectGen++
	gen := b.gcReconnectGen
	b.gcReconnectArmed = true
	b.scheduleTimer(timerGCReconnect, delay, gen)
}

func (b *Bot) scheduleRefreshOnce() {
	if b.refreshGen != 0 {
		return // already scheduled on a prior ready transition
	}
	b.armRefresh()
}

func (b *Bot) armRefresh() {
	b.refreshGen++
	gen := b.refreshGen
	jitter := time.Duration(rand.Int63n(int64(b.cfg.RefreshJitter)))
	b.scheduleTimer(timerRefresh, b.cfg.RefreshInterval+jitter, gen)
}

func (b *Bot) scheduleTimer(kind timerKind, delay time.Duration, gen uint64) {
	go func() {
		select {
		case <-b.clock.After(delay):
			b.postMsg(botMsg{kind: msgTimer, timer: kind, timerGen: gen})
		case <-b.done:
		}
	}()
}

func (b *Bot) handleTimer(kind timerKind, gen uint64) {
	switch kind {
	case timerLoginRetry:
		if gen == b.loginRetryGen {
			b.doLogin()
		}
	case timerGCReconnect:
		if gen == b.gcReconnectGen {
			b.forceGCHandshake(gen)
		}
	case timerGCHandshakeToggle:
		if gen == b.gcReconnectGen {
			if b.loggedOn {
				b.session.SetPlayedGames([]uint32{CS2AppID}, true)
			}
			// The scheduled attempt's work is done; nothing further is
			// outstanding until either connectedToGC fires or the health
			// monitor re-arms a fresh reconnect.
			b.gcReconnectArmed = false
		}
	case timerRefresh:
		if gen == b.refreshGen {
			b.onScheduledRefresh()
			b.armRefresh()
		}
	case timerHealth:
		b.onHealthCheck()
		b.postTimer(timerHealth, b.cfg.HealthCheckInterval, &b.healthGen)
	case timerTTL:
		if gen == b.ttlGen {
			b.onTTLExpired()
		}
	case timerBusyRelease:
		if gen == b.busyReleaseGen {
			b.releaseBusy()
		}
	}
}

// postTimer is scheduleTimer but reads the generation through a
// pointer so the recurring health-check timer doesn't need its own
// dedicated counter field mutation path.
func (b *Bot) postTimer(kind timerKind, delay time.Duration, gen *uint64) {
	g := *gen
	go func() {
		select {
		case <-b.clock.After(delay):
			b.postMsg(botMsg{kind: msgTimer, timer: kind, timerGen: g})
		case <-b.done:
		}
	}()
}

// forceGCHandshake implements the GC reconnection timer body of
// SPEC_FULL §4.3: toggle played games off then back on one second
// later to force a fresh GC handshake, gated on the same reconnect
// generation so a superseded attempt cannot fire a stale toggle.
func (b *Bot) forceGCHandshake(gen uint64) {
	if !b.loggedOn {
		return
	}
	b.session.SetPlayedGames(nil, false)
	b.scheduleTimer(timerGCHandshakeToggle, 1*time.Second, gen)
}

func (b *Bot) onScheduledRefresh() {
	if b.stateSnapshot() == StateBusy {
		b.relogDeferred = true
		return
	}
	b.doScheduledRelog()
}

func (b *Bot) doScheduledRelog() {
	if !b.gcSessionHeld {
		return
	}
	b.relogin = true
	if err := b.session.Relog(); err != nil {
		botLog(b.account.Username).WithError(err).Warn("scheduled relog failed")
	}
}

func (b *Bot) onHealthCheck() {
	if !b.loggedOn {
		b.doLogin()
		return
	}
	state := b.stateSnapshot()
	if state == StateReady && b.clock.Now().Sub(b.lastGcActivity) > b.cfg.GCInactivityCeiling {
		b.setState(StateGCLost)
		b.scheduleGCReconnect()
		return
	}
	if state != StateReady && state != StateBusy && !b.gcReconnectArmed {
		b.scheduleGCReconnect()
	}
}

// --- inspect request handling ---

func (b *Bot) doSendInspect(link InspectLink, deliver func(*ItemInfo, error)) {
	if b.stateSnapshot() != StateReady {
		b.metrics.RecordInspect("not_ready")
		deliver(nil, ErrNotReady)
		return
	}

	owner := link.S
	if owner == "0" || owner == "" {
		owner = link.M
	}
	ownerID, _ := strconv.ParseUint(owner, 10, 64)
	assetID, _ := strconv.ParseUint(link.A, 10, 64)
	proofToken, _ := strconv.ParseUint(link.D, 10, 64)

	b.pending = &PendingRequest{Link: link, IssuedAt: b.clock.Now(), Deliver: deliver}
	b.setState(StateBusy)

	b.ttlGen++
	gen := b.ttlGen
	b.scheduleTimer(timerTTL, b.cfg.RequestTTL, gen)

	if err := b.session.InspectItem(ownerID, assetID, proofToken); err != nil {
		botLog(b.account.Username).WithError(err).Warn("inspect item request failed to send")
	}
}

func (b *Bot) onItemInfo(raw []byte) {
	if b.pending == nil {
		return // no in-flight request; nothing to correlate against
	}
	info, err := DecodeItemInfo(raw)
	if err != nil {
		botLog(b.account.Username).WithError(err).Warn("failed to decode item info")
		return
	}
	wantAsset, _ := strconv.ParseUint(b.pending.Link.A, 10, 64)
	if info.ItemID != wantAsset {
		return // P7: stale/cross-talk reply, ignored without mutating state
	}

	b.ttlGen++ // cancels the TTL timer
	now := b.clock.Now()
	issuedAt := b.pending.IssuedAt
	delay := b.cfg.RequestDelay - now.Sub(issuedAt)
	if delay < 0 {
		delay = 0
	}

	link := b.pending.Link
	info.S, info.A, info.D, info.M = link.S, link.A, link.D, link.M
	info.Delay = delay.Milliseconds()
	ApplySchemaEnrichment(info)

	deliver := b.pending.Deliver
	b.pending = nil
	b.lastGcActivity = now
	b.metrics.RecordInspect("success")
	b.metrics.ObserveInspectLatencySeconds(now.Sub(issuedAt).Seconds())
	deliver(info, nil)

	b.busyReleaseGen++
	gen := b.busyReleaseGen
	b.scheduleTimer(timerBusyRelease, delay, gen)
}

func (b *Bot) onTTLExpired() {
	if b.pending == nil {
		return
	}
	deliver := b.pending.Deliver
	b.pending = nil
	b.metrics.RecordInspect("timeout")
	deliver(nil, ErrTtlExceeded)
	b.releaseBusy()
}

func (b *Bot) releaseBusy() {
	if b.stateSnapshot() != StateBusy {
		return
	}
	if b.gcSessionHeld {
		b.setState(StateReady)
	} else {
		b.setState(StateGCLost)
	}
	if b.relogDeferred {
		b.relogDeferred = false
		b.doScheduledRelog()
	}
}

func (b *Bot) doDestroy() {
	b.loginRetryGen++
	b.gcReconnectGen++
	b.refreshGen++
	b.ttlGen++
	b.busyReleaseGen++
	if b.session != nil {
		b.session.Close()
	}
	b.setState(StateDead)
}
