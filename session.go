package main

// SessionClient is the external capability SPEC_FULL §4.5 treats as
// opaque: an authenticated Steam session plus its attached Game
// Coordinator channel. The Bot is the sole owner of a SessionClient
// instance; it is never shared between bots.
type SessionClient interface {
	LogOn(creds Credentials) error
	LogOff()
	Relog() error
	SetPlayedGames(appIDs []uint32, persist bool)
	RequestFreeLicense(appIDs []uint32) error
	OwnsApp(appID uint32) (bool, error)
	InspectItem(ownerID, assetID, proofToken uint64) error
	// Events delivers the lifecycle/GC events listed in SPEC_FULL §4.5
	// in arrival order. The Bot is the sole reader.
	Events() <-chan SessionEvent
	Close()
}

// Credentials is the logOn payload; AuthCode is a short one-time code,
// TwoFactorCode a code already derived from a TOTP seed. At most one
// is set (see resolveAuthCode).
type Credentials struct {
	AccountName      string
	Password         string
	RememberPassword bool
	AuthCode         string
	TwoFactorCode    string
}

// SessionEventKind enumerates the events of SPEC_FULL §4.5.
type SessionEventKind int

const (
	EventError SessionEventKind = iota
	EventDisconnected
	EventLoggedOn
	EventOwnershipCached
	EventConnectedToGC
	EventDisconnectedFromGC
	EventConnectionStatus
	EventInspectItemInfo
)

// SessionEvent is the single event envelope delivered over
// SessionClient.Events(). Only the fields relevant to Kind are set.
type SessionEvent struct {
	Kind SessionEventKind

	Err           error  // EventError
	DisconnectMsg string // EventDisconnected / EventDisconnectedFromGC
	Status        int    // EventConnectionStatus
	RawItemInfo   []byte // EventInspectItemInfo, undecoded GC protobuf body
}
