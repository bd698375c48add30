package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ProposalState is derived from the clock, the tallies and the executed/canceled flags.
// It is never stored.
type ProposalState uint8

const (
	Pending ProposalState = iota
	Active
	Canceled
	Defeated
	Succeeded
	Executed
)

func (s ProposalState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Active:
		return "Active"
	case Canceled:
		return "Canceled"
	case Defeated:
		return "Defeated"
	case Succeeded:
		return "Succeeded"
	case Executed:
		return "Executed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is fixed by a stored flag. Defeated is not
// terminal, under the live quorum policy it can still turn Succeeded.
func (s ProposalState) Terminal() bool {
	return s == Canceled || s == Executed
}

type VoteType uint8

const (
	Against VoteType = iota
	For
	Abstain
)

func (v VoteType) Valid() bool {
	return v <= Abstain
}

func (v VoteType) String() string {
	switch v {
	case Against:
		return "Against"
	case For:
		return "For"
	case Abstain:
		return "Abstain"
	default:
		return "Invalid"
	}
}

// ParseVoteType accepts the names used by the CLI: for, against, abstain.
func ParseVoteType(s string) (VoteType, bool) {
	switch s {
	case "for", "For", "yes":
		return For, true
	case "against", "Against", "no":
		return Against, true
	case "abstain", "Abstain":
		return Abstain, true
	default:
		return 0, false
	}
}

type QuorumPolicy string

const (
	// QuorumLive evaluates quorum against the current total voting power.
	QuorumLive QuorumPolicy = "live"

	// QuorumSnapshot fixes the quorum vote count when the proposal is created.
	QuorumSnapshot QuorumPolicy = "snapshot"
)

func (p QuorumPolicy) Valid() bool {
	return p == QuorumLive || p == QuorumSnapshot
}

type Agent struct {
	ID          common.Address
	Registered  bool
	Verified    bool
	Active      bool
	VotingPower uint64
	Metadata    string

	// RegisteredAt is the block the agent was registered at
	RegisteredAt uint64
}

// counted reports whether the agent's power is part of the total voting power.
func (a *Agent) counted() bool {
	return a.Registered && a.Active
}

// Eligible reports whether the agent may propose and vote.
func (a *Agent) Eligible() bool {
	return a.Registered && a.Verified && a.Active
}

type Proposal struct {
	ID          uint64
	Proposer    common.Address
	Action      ActionDescriptor
	ActionHash  common.Hash
	Description string

	StartBlock uint64
	EndBlock   uint64

	ForVotes     uint64
	AgainstVotes uint64
	AbstainVotes uint64

	Executed bool
	Canceled bool

	// QuorumVotes is only set under the snapshot quorum policy
	QuorumVotes *uint64 `json:",omitempty"`
}

type VoteReceipt struct {
	ProposalID  uint64
	Voter       common.Address
	Choice      VoteType
	Weight      uint64
	CastAtBlock uint64
}

// Params are the governance parameters the administrator can update.
type Params struct {
	QuorumBasisPoints uint64
	VotingDelay       uint64
	VotingPeriod      uint64
}

func (p Params) Validate() error {
	if p.QuorumBasisPoints > MaxBasisPoints {
		return errors.Wrapf(ErrInvalidArgument, "quorum basis points %d exceeds %d", p.QuorumBasisPoints, MaxBasisPoints)
	}
	if p.VotingPeriod == 0 {
		return errors.Wrapf(ErrInvalidArgument, "voting period must be positive")
	}
	return nil
}
