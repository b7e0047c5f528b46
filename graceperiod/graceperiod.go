// Package graceperiod converts the block-range bounds of an acknowledgement
// into a timing state. The grace period is measured in block numbers because
// settlement finality is block-bound; wall-clock estimates are advisory only
// and never gate a transition.
package graceperiod

import (
	"time"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Status is the timing state of a grace period.
type Status string

const (
	// StatusPending means the window has not opened yet.
	StatusPending Status = "pending"

	// StatusActive means the window is open: registration is still blocked.
	StatusActive Status = "active"

	// StatusExpired means the window has passed and registration may proceed.
	StatusExpired Status = "expired"
)

// StatusAt returns the grace period state at the given head block: pending
// before StartBlock, active from StartBlock up to but excluding ExpiryBlock,
// expired at or after ExpiryBlock.
func StatusAt(ack interfaces.AcknowledgementRecord, currentBlock uint64) Status {
	switch {
	case currentBlock < ack.StartBlock:
		return StatusPending
	case currentBlock < ack.ExpiryBlock:
		return StatusActive
	default:
		return StatusExpired
	}
}

// RemainingBlocks returns how many blocks are left until the grace period
// expires, zero once it has.
func RemainingBlocks(ack interfaces.AcknowledgementRecord, currentBlock uint64) uint64 {
	if currentBlock >= ack.ExpiryBlock {
		return 0
	}
	return ack.ExpiryBlock - currentBlock
}

// Estimate converts the remaining block count into an approximate wall-clock
// duration using the chain's average block time. Zero when the period is
// already expired or no block time is known.
func Estimate(ack interfaces.AcknowledgementRecord, currentBlock uint64, blockTime time.Duration) time.Duration {
	if blockTime <= 0 {
		return 0
	}
	return time.Duration(RemainingBlocks(ack, currentBlock)) * blockTime
}
