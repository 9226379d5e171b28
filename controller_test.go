package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShuffledIndexes_IsPermutationOfRange(t *testing.T) {
	t.Parallel()
	order := shuffledIndexes(10)
	assert.Len(t, order, 10)

	seen := make(map[int]bool, 10)
	for _, idx := range order {
		assert.False(t, seen[idx], "index %d repeated", idx)
		seen[idx] = true
	}
	for i := 0; i < 10; i++ {
		assert.True(t, seen[i], "missing index %d", i)
	}
}

func TestShuffledIndexes_UniformOverManySamples(t *testing.T) {
	t.Parallel()
	const n = 4
	const trials = 20000

	firstPositionCounts := make([]int, n)
	for i := 0; i < trials; i++ {
		order := shuffledIndexes(n)
		firstPositionCounts[order[0]]++
	}

	expected := float64(trials) / float64(n)
	for i, count := range firstPositionCounts {
		ratio := float64(count) / expected
		assert.InDeltaf(t, 1.0, ratio, 0.15, "index %d appeared first %d times, expected ~%v", i, count, expected)
	}
}

func TestBotController_ReadyCountTracksEdgeTriggeredLatch(t *testing.T) {
	t.Parallel()
	c := &BotController{bots: make([]*Bot, 3)}

	c.onBotReadyChange(true)
	c.onBotReadyChange(true)
	assert.Equal(t, 2, c.GetReadyCount())

	c.onBotReadyChange(false)
	assert.Equal(t, 1, c.GetReadyCount())

	c.onBotReadyChange(false)
	c.onBotReadyChange(false) // already at zero, must not go negative
	assert.Equal(t, 0, c.GetReadyCount())
}

func TestBotController_ReconnectUnknownBot(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	c := NewBotController([]Account{{Username: "known"}}, cfg, NoneProxySelector{}, nil)
	err := c.Reconnect("unknown")
	assert.ErrorIs(t, err, ErrUnknownBot)
}

func TestBotController_LookupInspectFailsFastWithNoBots(t *testing.T) {
	t.Parallel()
	c := &BotController{}
	_, err := c.LookupInspect(InspectLink{S: "1", A: "2", D: "3"})
	assert.ErrorIs(t, err, ErrNoBotsAvailable)
}
