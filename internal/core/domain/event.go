package domain

import (
	"time"

	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// EventType names an observable vault state change.
type EventType string

const (
	EventDepositedNative EventType = "DepositedNative"
	EventDepositedToken  EventType = "DepositedToken"
	EventWithdrawnNative EventType = "WithdrawnNative"
	EventWithdrawnToken  EventType = "WithdrawnToken"
	EventAssetConfigured EventType = "AssetConfigured"
)

var eventSignatures = map[EventType]string{
	EventDepositedNative: "DepositedNative(address,uint256,uint256)",
	EventDepositedToken:  "DepositedToken(address,address,uint256,uint256)",
	EventWithdrawnNative: "WithdrawnNative(address,uint256,uint256)",
	EventWithdrawnToken:  "WithdrawnToken(address,address,uint256,uint256)",
	EventAssetConfigured: "AssetConfigured(address,address,bool)",
}

// Signature returns the canonical signature of the event type.
func (t EventType) Signature() string {
	return eventSignatures[t]
}

// Topic returns the Keccak-256 hash of the event signature, the identifier
// indexers subscribe on.
func (t EventType) Topic() common.Hash {
	return topicOf(t.Signature())
}

func topicOf(signature string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return common.BytesToHash(h.Sum(nil))
}

// Event is an emitted vault event. Amount and USDValue are unset for
// AssetConfigured; Oracle and Enabled are only set for it.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Actor     common.Address
	Asset     common.Address
	Amount    *uint256.Int
	USDValue  *uint256.Int
	Oracle    common.Address
	Enabled   bool
	CreatedAt time.Time
}

// EventPayload is the wire form of an Event shared by the HTTP API and all
// publishers. Integer amounts are base-10 strings.
type EventPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Topic     string `json:"topic"`
	Actor     string `json:"actor"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount,omitempty"`
	USDValue  string `json:"usd_value,omitempty"`
	Oracle    string `json:"oracle,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Payload converts the event to its wire form.
func (e *Event) Payload() EventPayload {
	p := EventPayload{
		ID:        e.ID.String(),
		Type:      string(e.Type),
		Topic:     e.Type.Topic().Hex(),
		Actor:     e.Actor.Hex(),
		Asset:     e.Asset.Hex(),
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Type == EventAssetConfigured {
		enabled := e.Enabled
		p.Oracle = e.Oracle.Hex()
		p.Enabled = &enabled
		return p
	}
	p.Amount = fixedpoint.String(e.Amount)
	p.USDValue = fixedpoint.String(e.USDValue)
	return p
}

// NewDepositEvent builds a DepositedNative or DepositedToken event.
func NewDepositEvent(user, asset common.Address, amount, usd *uint256.Int) *Event {
	t := EventDepositedToken
	if IsNative(asset) {
		t = EventDepositedNative
	}
	return newTransferEvent(t, user, asset, amount, usd)
}

// NewWithdrawEvent builds a WithdrawnNative or WithdrawnToken event.
func NewWithdrawEvent(user, asset common.Address, amount, usd *uint256.Int) *Event {
	t := EventWithdrawnToken
	if IsNative(asset) {
		t = EventWithdrawnNative
	}
	return newTransferEvent(t, user, asset, amount, usd)
}

func newTransferEvent(t EventType, user, asset common.Address, amount, usd *uint256.Int) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      t,
		Actor:     user,
		Asset:     asset,
		Amount:    amount.Clone(),
		USDValue:  usd.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssetConfiguredEvent builds an AssetConfigured event.
func NewAssetConfiguredEvent(admin common.Address, cfg *AssetConfig) *Event {
	return &Event{
		ID:        uuid.New(),
		Type:      EventAssetConfigured,
		Actor:     admin,
		Asset:     cfg.Asset,
		Oracle:    cfg.Oracle,
		Enabled:   cfg.Enabled,
		CreatedAt: time.Now().UTC(),
	}
}
