package distributor

import (
	"encoding/hex"
	"strconv"

	"merkledrop/core/types"
	"merkledrop/crypto"
)

const (
	EventTypeDistributorCreated      = "distributor.created"
	EventTypeNewClaim                = "distributor.new_claim"
	EventTypeClaimed                 = "distributor.claimed"
	EventTypeClawback                = "distributor.clawback"
	EventTypeAdminUpdated            = "distributor.admin_updated"
	EventTypeClawbackReceiverUpdated = "distributor.clawback_receiver_updated"
	EventTypeFunded                  = "distributor.funded"
)

type distributorEvent struct {
	evt *types.Event
}

func (e distributorEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e distributorEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the payload emitted once a distributor is stored.
func NewCreatedEvent(d *Distributor) *types.Event {
	attrs := baseAttributes(d.ID)
	attrs["version"] = strconv.FormatUint(d.Version, 10)
	attrs["root"] = hex.EncodeToString(d.Root[:])
	attrs["hasher"] = d.Hasher
	attrs["mint"] = addressString(d.Mint)
	attrs["vault"] = addressString(d.Vault)
	attrs["admin"] = addressString(d.Admin)
	attrs["clawbackReceiver"] = addressString(d.ClawbackReceiver)
	attrs["maxTotalClaim"] = strconv.FormatUint(d.MaxTotalClaim, 10)
	attrs["maxNumNodes"] = strconv.FormatUint(d.MaxNumNodes, 10)
	attrs["startTs"] = strconv.FormatInt(d.StartTs, 10)
	attrs["endTs"] = strconv.FormatInt(d.EndTs, 10)
	attrs["clawbackStartTs"] = strconv.FormatInt(d.ClawbackStartTs, 10)
	return &types.Event{Type: EventTypeDistributorCreated, Attributes: attrs}
}

// NewClaimEvent returns the payload of a first claim. Amount is the unlocked
// portion transferred immediately.
func NewClaimEvent(id [32]byte, status *ClaimStatus, timestamp int64) *types.Event {
	attrs := baseAttributes(id)
	attrs["claimant"] = addressString(status.Claimant)
	attrs["amount"] = strconv.FormatUint(status.UnlockedAmount, 10)
	attrs["unlocked"] = strconv.FormatUint(status.UnlockedAmount, 10)
	attrs["locked"] = strconv.FormatUint(status.LockedAmount, 10)
	attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	return &types.Event{Type: EventTypeNewClaim, Attributes: attrs}
}

// NewClaimedEvent returns the payload of a locked withdrawal.
// remainingSeconds is zero once the schedule has fully elapsed.
func NewClaimedEvent(id [32]byte, claimant [20]byte, amount uint64, withdrawn uint64, remainingSeconds int64) *types.Event {
	attrs := baseAttributes(id)
	attrs["claimant"] = addressString(claimant)
	attrs["amount"] = strconv.FormatUint(amount, 10)
	attrs["withdrawn"] = strconv.FormatUint(withdrawn, 10)
	attrs["remainingSeconds"] = strconv.FormatInt(remainingSeconds, 10)
	return &types.Event{Type: EventTypeClaimed, Attributes: attrs}
}

func NewClawbackEvent(id [32]byte, receiver [20]byte, amount uint64) *types.Event {
	attrs := baseAttributes(id)
	attrs["receiver"] = addressString(receiver)
	attrs["amount"] = strconv.FormatUint(amount, 10)
	return &types.Event{Type: EventTypeClawback, Attributes: attrs}
}

func NewAdminUpdatedEvent(id [32]byte, previous, next [20]byte) *types.Event {
	attrs := baseAttributes(id)
	attrs["previous"] = addressString(previous)
	attrs["admin"] = addressString(next)
	return &types.Event{Type: EventTypeAdminUpdated, Attributes: attrs}
}

func NewClawbackReceiverUpdatedEvent(id [32]byte, previous, next [20]byte) *types.Event {
	attrs := baseAttributes(id)
	attrs["previous"] = addressString(previous)
	attrs["receiver"] = addressString(next)
	return &types.Event{Type: EventTypeClawbackReceiverUpdated, Attributes: attrs}
}

// NewFundedEvent returns the payload of a vault deposit.
func NewFundedEvent(id [32]byte, from [20]byte, amount, vaultBalance uint64) *types.Event {
	attrs := baseAttributes(id)
	attrs["from"] = addressString(from)
	attrs["amount"] = strconv.FormatUint(amount, 10)
	attrs["vaultBalance"] = strconv.FormatUint(vaultBalance, 10)
	return &types.Event{Type: EventTypeFunded, Attributes: attrs}
}

func baseAttributes(id [32]byte) map[string]string {
	return map[string]string{"distributor": hex.EncodeToString(id[:])}
}

func addressString(addr [20]byte) string {
	return crypto.AddressFromRaw(addr).String()
}
