package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventKind identifies one of the five vault event types
type EventKind string

const (
	EventDeposited  EventKind = "Deposited"
	EventWithdrawn  EventKind = "Withdrawn"
	EventMinted     EventKind = "Minted"
	EventRepaid     EventKind = "Repaid"
	EventLiquidated EventKind = "Liquidated"
)

// MutatesPosition reports whether the event changes an owner's position
// without being a liquidation.
func (k EventKind) MutatesPosition() bool {
	switch k {
	case EventDeposited, EventWithdrawn, EventMinted, EventRepaid:
		return true
	}
	return false
}

// VaultEvent is a decoded vault log. Backfill and live subscription both
// produce this type, so the indexer reconciles them through one code path.
type VaultEvent struct {
	Kind        EventKind
	Owner       common.Address
	Amount      *big.Int
	FeePaid     *big.Int       // Repaid only
	Principal   *big.Int       // Repaid only
	Liquidator  common.Address // Liquidated only
	RepayAmount *big.Int       // Liquidated only
	Seized      *big.Int       // Liquidated only
	BadDebt     *big.Int       // Liquidated only
	TxHash      common.Hash
	BlockNumber uint64
}

type depositedEvent struct {
	Owner      common.Address
	WethAmount *big.Int
}

type withdrawnEvent struct {
	Owner      common.Address
	WethAmount *big.Int
}

type mintedEvent struct {
	Owner     common.Address
	StbAmount *big.Int
}

type repaidEvent struct {
	Owner         common.Address
	StbAmount     *big.Int
	FeePaid       *big.Int
	PrincipalPaid *big.Int
}

type liquidatedEvent struct {
	Owner            common.Address
	Liquidator       common.Address
	RepayAmount      *big.Int
	SeizedCollateral *big.Int
	BadDebtDelta     *big.Int
}

// decodeVaultLog turns a raw log from the vault contract into a VaultEvent.
// Returns nil for logs that match none of the five tracked events.
func (c *EthClient) decodeVaultLog(log types.Log) (*VaultEvent, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	kind, ok := c.eventKinds[log.Topics[0]]
	if !ok {
		return nil, nil
	}

	out := &VaultEvent{
		Kind:        kind,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
	}

	switch kind {
	case EventDeposited:
		var ev depositedEvent
		if err := c.vault.UnpackLog(&ev, string(kind), log); err != nil {
			return nil, newError(KindDecode, "decodeVaultLog", err)
		}
		out.Owner = ev.Owner
		out.Amount = ev.WethAmount
	case EventWithdrawn:
		var ev withdrawnEvent
		if err := c.vault.UnpackLog(&ev, string(kind), log); err != nil {
			return nil, newError(KindDecode, "decodeVaultLog", err)
		}
		out.Owner = ev.Owner
		out.Amount = ev.WethAmount
	case EventMinted:
		var ev mintedEvent
		if err := c.vault.UnpackLog(&ev, string(kind), log); err != nil {
			return nil, newError(KindDecode, "decodeVaultLog", err)
		}
		out.Owner = ev.Owner
		out.Amount = ev.StbAmount
	case EventRepaid:
		var ev repaidEvent
		if err := c.vault.UnpackLog(&ev, string(kind), log); err != nil {
			return nil, newError(KindDecode, "decodeVaultLog", err)
		}
		out.Owner = ev.Owner
		out.Amount = ev.StbAmount
		out.FeePaid = ev.FeePaid
		out.Principal = ev.PrincipalPaid
	case EventLiquidated:
		var ev liquidatedEvent
		if err := c.vault.UnpackLog(&ev, string(kind), log); err != nil {
			return nil, newError(KindDecode, "decodeVaultLog", err)
		}
		out.Owner = ev.Owner
		out.Liquidator = ev.Liquidator
		out.RepayAmount = ev.RepayAmount
		out.Seized = ev.SeizedCollateral
		out.BadDebt = ev.BadDebtDelta
	}

	return out, nil
}
