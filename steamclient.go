package main

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	goSteam "github.com/Philipp15b/go-steam/v3"
	csgoProto "github.com/Philipp15b/go-steam/v3/csgo/protocol/protobuf"
	"github.com/Philipp15b/go-steam/v3/protocol/gamecoordinator"
	"golang.org/x/net/proxy"
	"google.golang.org/protobuf/proto"
)

// byteSlice adapts a raw []byte to gamecoordinator's Serializer
// interface, exactly as the teacher implementation's ByteSlice did.
type byteSlice []byte

func (b byteSlice) Serialize(w io.Writer) error {
	_, err := w.Write(b)
	return err
}

const helloInterval = 30 * time.Second

// steamSessionClient adapts github.com/Philipp15b/go-steam/v3 to the
// SessionClient contract of session.go. It owns one goSteam.Client and
// translates its events plus CS2 GC packets into the SPEC_FULL §4.5
// event vocabulary; it is never shared between bots.
type steamSessionClient struct {
	client *goSteam.Client
	events chan SessionEvent

	mu          sync.Mutex
	pendingCreds *Credentials
	gcReady     bool
	lastHello   time.Time

	stopHello chan struct{}
	closeOnce sync.Once
}

// NewSteamSessionClient constructs a SessionClient bound to an
// optional egress dialer (nil dials Steam directly).
func NewSteamSessionClient(dialer proxy.Dialer) SessionClient {
	client := goSteam.NewClient()
	if dialer != nil {
		client.SetProxyDialer(&dialer)
	}

	s := &steamSessionClient{
		client:    client,
		events:    make(chan SessionEvent, 32),
		stopHello: make(chan struct{}),
	}
	client.GC.RegisterPacketHandler(s)
	go s.pumpSteamEvents()
	go s.helloTicker()
	return s
}

func (s *steamSessionClient) Events() <-chan SessionEvent { return s.events }

func (s *steamSessionClient) emit(e SessionEvent) {
	select {
	case s.events <- e:
	default:
		// Drop rather than block the Steam event pump; the bot's own
		// health monitor will notice a stalled session.
	}
}

func (s *steamSessionClient) pumpSteamEvents() {
	for event := range s.client.Events() {
		switch e := event.(type) {
		case *goSteam.ConnectedEvent:
			s.mu.Lock()
			creds := s.pendingCreds
			s.mu.Unlock()
			if creds != nil {
				s.client.Auth.LogOn(&goSteam.LogOnDetails{
					Username:               creds.AccountName,
					Password:               creds.Password,
					ShouldRememberPassword: creds.RememberPassword,
					AuthCode:               creds.AuthCode,
					TwoFactorCode:          creds.TwoFactorCode,
				})
			}
		case *goSteam.LoggedOnEvent:
			s.emit(SessionEvent{Kind: EventLoggedOn})
			// CS2 (app 730) is free-to-play: ownership is implicit for
			// any Steam account, so the one-shot ownershipCached signal
			// fires immediately rather than waiting on a license list.
			s.emit(SessionEvent{Kind: EventOwnershipCached})
		case *goSteam.DisconnectedEvent:
			s.setGCReady(false)
			s.emit(SessionEvent{Kind: EventDisconnected, DisconnectMsg: fmt.Sprintf("%v", e)})
		}
	}
}

func (s *steamSessionClient) helloTicker() {
	ticker := time.NewTicker(helloInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.IsGCReady() {
				s.sendHello()
			}
		case <-s.stopHello:
			return
		}
	}
}

func (s *steamSessionClient) sendHello() {
	msg := gamecoordinator.NewGCMsg(CS2AppID, uint32(csgoProto.EGCBaseClientMsg_k_EMsgGCClientHello), byteSlice{})
	s.client.GC.Write(msg)
	s.mu.Lock()
	s.lastHello = time.Now()
	s.mu.Unlock()
}

func (s *steamSessionClient) setGCReady(ready bool) {
	s.mu.Lock()
	s.gcReady = ready
	s.mu.Unlock()
}

// IsGCReady reports whether the last observed GC packet indicated an
// attached session. The hello ticker uses it to stop sending hellos
// once the GC has answered.
func (s *steamSessionClient) IsGCReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gcReady
}

// HandleGCPacket implements goSteam.GCPacketHandler.
func (s *steamSessionClient) HandleGCPacket(packet *gamecoordinator.GCPacket) {
	if packet.AppId != CS2AppID {
		return
	}
	switch packet.MsgType {
	case uint32(csgoProto.EGCBaseClientMsg_k_EMsgGCClientWelcome),
		uint32(csgoProto.EGCBaseClientMsg_k_EMsgGCClientConnectionStatus):
		wasReady := s.IsGCReady()
		s.setGCReady(true)
		if !wasReady {
			s.emit(SessionEvent{Kind: EventConnectedToGC})
		}
	case uint32(csgoProto.ECsgoGCMsg_k_EMsgGCCStrike15_v2_Client2GCEconPreviewDataBlockResponse):
		s.emit(SessionEvent{Kind: EventInspectItemInfo, RawItemInfo: packet.Body})
	}
}

func (s *steamSessionClient) LogOn(creds Credentials) error {
	s.mu.Lock()
	s.pendingCreds = &creds
	s.mu.Unlock()
	s.client.Connect()
	return nil
}

func (s *steamSessionClient) LogOff() {
	s.client.Disconnect()
}

func (s *steamSessionClient) Relog() error {
	s.mu.Lock()
	creds := s.pendingCreds
	s.mu.Unlock()
	if creds == nil {
		return fmt.Errorf("relog: no prior credentials")
	}
	s.client.Disconnect()
	return s.LogOn(*creds)
}

func (s *steamSessionClient) SetPlayedGames(appIDs []uint32, persist bool) {
	ids := make([]uint64, len(appIDs))
	for i, id := range appIDs {
		ids[i] = uint64(id)
	}
	s.client.GC.SetGamesPlayed(ids...)
}

// RequestFreeLicense and OwnsApp are no-ops for CS2: app 730 is
// free-to-play, so every Steam account already owns it and the
// upstream license-list round trip SPEC_FULL §4.5 names never has
// anything to do in practice. Kept as real methods (not omitted) so a
// future paid-app deployment has a seam to implement against.
func (s *steamSessionClient) RequestFreeLicense(appIDs []uint32) error {
	return nil
}

func (s *steamSessionClient) OwnsApp(appID uint32) (bool, error) {
	return true, nil
}

func (s *steamSessionClient) InspectItem(ownerID, assetID, proofToken uint64) error {
	req := &csgoProto.CMsgGCCStrike15V2_Client2GCEconPreviewDataBlockRequest{
		ParamS: proto.Uint64(ownerID),
		ParamA: proto.Uint64(assetID),
		ParamD: proto.Uint64(proofToken),
	}
	msg := gamecoordinator.NewGCMsgProtobuf(CS2AppID, uint32(csgoProto.ECsgoGCMsg_k_EMsgGCCStrike15_v2_Client2GCEconPreviewDataBlockRequest), req)
	s.client.GC.Write(msg)
	return nil
}

func (s *steamSessionClient) Close() {
	s.closeOnce.Do(func() {
		close(s.stopHello)
		s.client.Disconnect()
	})
}

// DecodeItemInfo unmarshals a raw EventInspectItemInfo payload into
// the canonical ItemInfo shape (R1-R3): paintwear -> floatValue,
// paintseed defaults to 0, sticker_id -> stickerId. Schema enrichment
// (wear name, pattern, market hash name) is layered on separately by
// ApplySchemaEnrichment, never here, so a schema outage cannot block
// delivery of the canonical fields.
func DecodeItemInfo(raw []byte) (*ItemInfo, error) {
	var resp csgoProto.CMsgGCCStrike15V2_Client2GCEconPreviewDataBlockResponse
	if err := proto.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode item info: %w", err)
	}
	src := resp.GetIteminfo()
	if src == nil {
		return nil, fmt.Errorf("decode item info: response has no iteminfo")
	}

	info := &ItemInfo{
		AccountID:          src.GetAccountid(),
		ItemID:             src.GetItemid(),
		DefIndex:           src.GetDefindex(),
		PaintIndex:         src.GetPaintindex(),
		Rarity:             src.GetRarity(),
		Quality:            src.GetQuality(),
		FloatValue:         paintWearToFloat(src.GetPaintwear()),
		PaintSeed:          src.GetPaintseed(), // proto default 0 satisfies R2
		KilleaterScoreType: src.GetKilleaterscoretype(),
		KilleaterValue:     killeaterValueOrNegativeOne(src),
		CustomName:         src.GetCustomname(),
		Inventory:          src.GetInventory(),
		Origin:             src.GetOrigin(),
		QuestID:            src.GetQuestid(),
		DropReason:         src.GetDropreason(),
		MusicIndex:         src.GetMusicindex(),
		EntIndex:           src.GetEntindex(),
		PetIndex:           src.GetPetindex(),
		Stickers:           make([]StickerInfo, 0, len(src.GetStickers())),
		Keychains:          make([]StickerInfo, 0, len(src.GetKeychains())),
	}
	info.IsSouvenir = info.Quality == 12
	info.IsStatTrak = info.KilleaterScoreType > 0 && info.Quality != 12

	for _, st := range src.GetStickers() {
		info.Stickers = append(info.Stickers, StickerInfo{
			Slot:      st.GetSlot(),
			StickerID: st.GetStickerId(),
			Wear:      st.GetWear(),
			Scale:     st.GetScale(),
			Rotation:  st.GetRotation(),
			TintID:    st.GetTintId(),
			OffsetX:   st.GetOffsetX(),
			OffsetY:   st.GetOffsetY(),
			OffsetZ:   st.GetOffsetZ(),
			Pattern:   st.GetPattern(),
		})
	}
	for _, kc := range src.GetKeychains() {
		info.Keychains = append(info.Keychains, StickerInfo{
			Slot:      kc.GetSlot(),
			StickerID: kc.GetStickerId(),
			Wear:      kc.GetWear(),
			Scale:     kc.GetScale(),
			Rotation:  kc.GetRotation(),
			TintID:    kc.GetTintId(),
			OffsetX:   kc.GetOffsetX(),
			OffsetY:   kc.GetOffsetY(),
			OffsetZ:   kc.GetOffsetZ(),
			Pattern:   kc.GetPattern(),
		})
	}

	return info, nil
}

func killeaterValueOrNegativeOne(src *csgoProto.CEconItemPreviewDataBlock) int32 {
	if src != nil && src.Killeatervalue != nil {
		return int32(*src.Killeatervalue)
	}
	return -1
}

// paintWearToFloat interprets CS2's wire paint-wear value as the bit
// pattern of an IEEE 754 binary32 float, as the teacher implementation
// does.
func paintWearToFloat(bits uint32) float64 {
	return float64(math.Float32frombits(bits))
}
