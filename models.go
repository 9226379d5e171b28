package main

import "time"

// CS2AppID is the Steam app id for Counter-Strike 2.
const CS2AppID = 730

// InspectLink is the parsed form of a signed inspect URL. Exactly one
// of S or M is the non-"0" owner; A and D are always present.
type InspectLink struct {
	S string
	A string
	D string
	M string
}

// PendingRequest tracks the single in-flight inspect a bot may be
// serving at a time. Deliver is called exactly once, either with a
// result or an error.
type PendingRequest struct {
	Link     InspectLink
	IssuedAt time.Time
	Deliver  func(*ItemInfo, error)
}

// StickerInfo is a single sticker or keychain slot on an inspected item.
type StickerInfo struct {
	Slot     uint32  `json:"slot,omitempty"`
	StickerID uint32 `json:"stickerId"`
	Wear     float32 `json:"wear,omitempty"`
	Scale    float32 `json:"scale,omitempty"`
	Rotation float32 `json:"rotation,omitempty"`
	TintID   uint32  `json:"tintId,omitempty"`
	OffsetX  float32 `json:"offsetX,omitempty"`
	OffsetY  float32 `json:"offsetY,omitempty"`
	OffsetZ  float32 `json:"offsetZ,omitempty"`
	Pattern  uint32  `json:"pattern,omitempty"`
}

// ItemInfo is the GC reply normalized to the contract of SPEC_FULL §3:
// paintseed defaults to 0, paintwear is renamed floatValue, sticker_id
// is renamed stickerId, and the request's own s/a/d/m and delay are
// attached so callers can correlate the reply.
type ItemInfo struct {
	ItemID     uint64        `json:"itemId,omitempty"`
	AccountID  uint32        `json:"accountId,omitempty"`
	DefIndex   uint32        `json:"defindex"`
	PaintIndex uint32        `json:"paintindex"`
	Rarity     uint32        `json:"rarity"`
	Quality    uint32        `json:"quality"`
	FloatValue float64       `json:"floatValue"`
	PaintSeed  uint32        `json:"paintseed"`
	KilleaterScoreType uint32 `json:"killeaterScoreType,omitempty"`
	KilleaterValue     int32  `json:"killeaterValue,omitempty"`
	CustomName string        `json:"customName,omitempty"`
	Stickers   []StickerInfo `json:"stickers"`
	Keychains  []StickerInfo `json:"keychains"`
	Inventory  uint32        `json:"inventory,omitempty"`
	Origin     uint32        `json:"origin,omitempty"`
	QuestID    uint32        `json:"questId,omitempty"`
	DropReason uint32        `json:"dropReason,omitempty"`
	MusicIndex uint32        `json:"musicIndex,omitempty"`
	EntIndex   int32         `json:"entIndex,omitempty"`
	PetIndex   uint32        `json:"petIndex,omitempty"`
	IsSouvenir bool          `json:"souvenir"`
	IsStatTrak bool          `json:"stattrak"`

	// Request pass-through.
	S     string `json:"s"`
	A     string `json:"a"`
	D     string `json:"d"`
	M     string `json:"m"`
	Delay int64  `json:"delay"`

	// Schema enrichment (component J); best-effort, never blocks delivery.
	WearName       string  `json:"wearName,omitempty"`
	Pattern        string  `json:"pattern,omitempty"`
	MarketHashName string  `json:"marketHashName,omitempty"`
	Phase          string  `json:"phase,omitempty"`
	ItemType       string  `json:"itemType,omitempty"`
	MinFloat       float64 `json:"minFloat,omitempty"`
	MaxFloat       float64 `json:"maxFloat,omitempty"`
}

// ProxyBinding is an egress assignment handed to a bot's SessionClient.
// A nil binding means dial Steam directly.
type ProxyBinding struct {
	HTTPProxy  string
	SocksProxy string
	Name       string
}

// Account is one entry from the account file.
type Account struct {
	Username     string
	Password     string
	SharedSecret string
	ProxyName    string
}

// BotSnapshot is the per-bot status the controller exposes.
type BotSnapshot struct {
	Username     string `json:"username"`
	State        string `json:"state"`
	Ready        bool   `json:"ready"`
	Busy         bool   `json:"busy"`
	LoginAttempt int    `json:"loginAttempt"`
	GCAttempt    int    `json:"gcAttempt"`
	ProxyName    string `json:"proxyName,omitempty"`
}

// StatusResponse is the payload served by GET /status.
type StatusResponse struct {
	ReadyCount int           `json:"readyCount"`
	Bots       []BotSnapshot `json:"bots"`
}
