package main

import (
	"math/rand"
	"sync"
	"time"
)

// BotController owns the full bot pool and is the sole entry point the
// HTTP layer talks to, mirroring the supervisory role of the teacher
// implementation's BotManager (GetAvailableBot/ReleaseBot/Shutdown)
// but built around the Bot's own single-writer event loop instead of a
// manager-held mutex over bot fields.
type BotController struct {
	bots    []*Bot
	metrics *Metrics

	readyMu    sync.Mutex
	readyCount int
	readySince time.Time
}

// NewBotController builds one Bot per account and starts each bot's
// event loop immediately.
func NewBotController(accounts []Account, cfg *Config, selector ProxySelector, metrics *Metrics) *BotController {
	c := &BotController{metrics: metrics}
	c.bots = make([]*Bot, len(accounts))
	for i, acct := range accounts {
		bot := NewBot(i, acct, cfg, nil, nil, selector, metrics, nil, c.onBotReadyChange)
		c.bots[i] = bot
	}
	return c
}

// Start launches every bot's event loop and first login attempt.
func (c *BotController) Start() {
	for _, bot := range c.bots {
		bot.Start()
	}
}

// onBotReadyChange is the edge-triggered latch of SPEC_FULL §9: each
// Bot calls this only when its own ready/not-ready edge flips, so the
// aggregate readyCount is updated in O(1) per transition rather than
// re-scanned on every status request.
func (c *BotController) onBotReadyChange(ready bool) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	if ready {
		c.readyCount++
	} else if c.readyCount > 0 {
		c.readyCount--
	}
	if c.readyCount > 0 && c.readySince.IsZero() {
		c.readySince = time.Now()
	}
	busy := 0
	for _, bot := range c.bots {
		if bot != nil && bot.IsBusy() {
			busy++
		}
	}
	c.metrics.SetReadyBusy(c.readyCount, busy)
}

// GetReadyCount reports how many bots currently hold StateReady.
func (c *BotController) GetReadyCount() int {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.readyCount
}

// WaitForInitialization blocks until the controller considers startup
// complete: either at least one bot is ready, or every bot has at
// least attempted its first login, or timeout elapses (spec §4.4's
// startup barrier). It never reports failure by itself — the bool
// result only tells the caller whether at least one bot is ready.
func (c *BotController) WaitForInitialization(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.GetReadyCount() > 0 {
			return true
		}
		if c.allBotsAttemptedLogin() {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return c.GetReadyCount() > 0
}

// allBotsAttemptedLogin reports whether every bot has left StateInit at
// least once. Start() posts the first login message synchronously
// before returning, and a bot's state never returns to StateInit once
// left, so this is a one-way latch per bot.
func (c *BotController) allBotsAttemptedLogin() bool {
	for _, bot := range c.bots {
		if bot.stateSnapshot() == StateInit {
			return false
		}
	}
	return true
}

// LookupInspect dispatches link to a uniformly-random ready bot using a
// Fisher-Yates shuffle over the pool indexes, retrying the next
// candidate whenever a bot fails fast with ErrNotReady (it lost
// readiness between the shuffle and the dispatch). Returns
// ErrNoBotsAvailable if none could serve it.
func (c *BotController) LookupInspect(link InspectLink) (*ItemInfo, error) {
	order := shuffledIndexes(len(c.bots))
	for _, idx := range order {
		bot := c.bots[idx]
		if !bot.IsReady() {
			continue
		}
		info, err := bot.SendInspect(link)
		if err == ErrNotReady {
			continue
		}
		return info, err
	}
	c.metrics.RecordInspect("no_bots")
	return nil, ErrNoBotsAvailable
}

// shuffledIndexes returns a Fisher-Yates shuffle of 0..n-1, grounded on
// SPEC_FULL §4.4's uniform-dispatch requirement.
func shuffledIndexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// GetStatus reports a snapshot of every bot for the /status endpoint.
func (c *BotController) GetStatus() StatusResponse {
	snapshots := make([]BotSnapshot, len(c.bots))
	for i, bot := range c.bots {
		snapshots[i] = bot.Snapshot()
	}
	return StatusResponse{
		ReadyCount: c.GetReadyCount(),
		Bots:       snapshots,
	}
}

// Reconnect forces the named bot to re-login, per SPEC_FULL §4.9's
// POST /reconnect operation.
func (c *BotController) Reconnect(username string) error {
	for _, bot := range c.bots {
		if bot.account.Username == username {
			bot.Login()
			return nil
		}
	}
	return ErrUnknownBot
}

// Destroy tears down every bot in the pool.
func (c *BotController) Destroy() {
	for _, bot := range c.bots {
		bot.Destroy()
	}
}
