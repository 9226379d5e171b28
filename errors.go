package main

import (
	"errors"
	"strings"
)

// Sentinel errors returned across the bot/controller/inspect-link
// boundary. Callers use errors.Is against these.
var (
	ErrInvalidLink      = errors.New("inspect link: neither owner field set, or asset/proof missing")
	ErrNotReady         = errors.New("bot: not ready")
	ErrNoBotsAvailable  = errors.New("controller: no ready bot available")
	ErrTtlExceeded      = errors.New("bot: inspect reply ttl exceeded")
	ErrAuthInvalid      = errors.New("bot: authentication rejected")
	ErrLicenseFailure   = errors.New("bot: free license grant failed")
	ErrGcReconnectFailed = errors.New("bot: exhausted game coordinator reconnect attempts")
	ErrShuttingDown     = errors.New("bot: shutting down")
	ErrUnknownBot       = errors.New("controller: no bot with that username")
)

// RetryClassifier decides whether a login error is worth retrying
// with backoff. The default implementation matches the known
// transient classes the upstream Steam library is known to surface;
// callers may substitute their own (see SPEC_FULL §4.3 / §9).
type RetryClassifier func(err error) bool

var retryableSubstrings = []string{
	"Proxy connection timed out",
	"LogonSessionReplaced",
	"ServiceUnavailable",
	"ConnectFailed",
	"Timeout",
}

var retryableResults = map[int]bool{
	84: true,
	85: true,
	86: true,
	87: true,
}

// DefaultRetryClassifier implements the string/code table of SPEC_FULL
// §4.3 step 2.
func DefaultRetryClassifier(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	if code, ok := err.(interface{ ResultCode() int }); ok {
		return retryableResults[code.ResultCode()]
	}
	return false
}
