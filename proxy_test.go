package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneProxySelector_AlwaysDirect(t *testing.T) {
	t.Parallel()
	var sel ProxySelector = NoneProxySelector{}
	binding, ok := sel.Pick(0, "anyone")
	assert.False(t, ok)
	assert.Nil(t, binding)
}

func TestStaticProxySelector_RoundRobinsByIndex(t *testing.T) {
	t.Parallel()
	sel := NewStaticProxySelector([]ProxyBinding{{Name: "a"}, {Name: "b"}})

	b0, ok := sel.Pick(0, "")
	require.True(t, ok)
	assert.Equal(t, "a", b0.Name)

	b1, ok := sel.Pick(1, "")
	require.True(t, ok)
	assert.Equal(t, "b", b1.Name)

	b2, ok := sel.Pick(2, "")
	require.True(t, ok)
	assert.Equal(t, "a", b2.Name, "wraps back around")
}

func TestStaticProxySelector_EmptyTableReturnsDirect(t *testing.T) {
	t.Parallel()
	sel := NewStaticProxySelector(nil)
	binding, ok := sel.Pick(0, "")
	assert.False(t, ok)
	assert.Nil(t, binding)
}

func TestClashProxySelector_PicksAliveUpstreamAndSwitches(t *testing.T) {
	t.Parallel()

	var switchedTo string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/proxies":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"proxies": map[string]any{
					"PROXY":    map[string]any{"type": "Selector"},
					"upstream-a": map[string]any{"type": "Shadowsocks", "alive": true},
					"upstream-b": map[string]any{"type": "Shadowsocks", "alive": false},
				},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/proxies/PROXY":
			var body struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			switchedTo = body.Name
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &Config{ClashAPIURL: server.URL, ProxyPort: 7890, ProxySwitchCooldown: 0}
	sel := NewClashProxySelector(cfg, nil)

	binding, ok := sel.Pick(0, "bot0")
	require.True(t, ok)
	assert.Equal(t, "upstream-a", binding.Name, "upstream-b is not alive and PROXY is a meta-group")
	assert.Equal(t, "upstream-a", switchedTo)
}

func TestClashProxySelector_RespectsCooldown(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]any{
				"proxies": map[string]any{"upstream-a": map[string]any{"type": "Shadowsocks"}},
			})
		} else {
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	cfg := &Config{ClashAPIURL: server.URL, ProxyPort: 7890, ProxySwitchCooldown: time.Hour}
	sel := NewClashProxySelector(cfg, nil)

	_, ok := sel.Pick(0, "bot0")
	require.True(t, ok)
	callsAfterFirst := calls

	_, ok = sel.Pick(0, "bot0")
	assert.False(t, ok, "second pick within cooldown window is refused")
	assert.Equal(t, callsAfterFirst, calls, "no http calls made once cooldown blocks the pick")
}

func TestDialerForBinding_NilBindingIsDirect(t *testing.T) {
	t.Parallel()
	dialer, err := DialerForBinding(nil)
	require.NoError(t, err)
	assert.Nil(t, dialer)
}

func TestDialerForBinding_InvalidSocksURL(t *testing.T) {
	t.Parallel()
	_, err := DialerForBinding(&ProxyBinding{SocksProxy: "://bad-url"})
	assert.Error(t, err)
}
