package core

import (
	"github.com/ethereum/go-ethereum/common"
)

type EventKind uint8

const (
	AgentRegistered EventKind = iota
	AgentVerified
	AgentDeactivated
	AgentReactivated
	VotingPowerUpdated
	ProposalCreated
	ProposalCanceled
	ProposalExecuted
	VoteCast
	QuorumUpdated
	VotingDelayUpdated
	VotingPeriodUpdated
)

var eventKindNames = map[EventKind]string{
	AgentRegistered:     "AgentRegistered",
	AgentVerified:       "AgentVerified",
	AgentDeactivated:    "AgentDeactivated",
	AgentReactivated:    "AgentReactivated",
	VotingPowerUpdated:  "VotingPowerUpdated",
	ProposalCreated:     "ProposalCreated",
	ProposalCanceled:    "ProposalCanceled",
	ProposalExecuted:    "ProposalExecuted",
	VoteCast:            "VoteCast",
	QuorumUpdated:       "QuorumUpdated",
	VotingDelayUpdated:  "VotingDelayUpdated",
	VotingPeriodUpdated: "VotingPeriodUpdated",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Event is emitted once per successful mutating operation. Fields that do not apply
// to the kind are left zero.
type Event struct {
	// Seq numbers the events of one governor in the order they were applied
	Seq   uint64
	Kind  EventKind
	Block uint64

	Agent      common.Address
	ProposalID uint64

	Choice VoteType
	Weight uint64

	// OldValue and NewValue carry voting power or parameter changes
	OldValue uint64
	NewValue uint64

	Result []byte
}
