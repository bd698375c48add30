package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CreateProposal opens a proposal whose voting starts after the voting delay and
// lasts the voting period. It returns the new proposal id.
func (g *Governor) CreateProposal(proposer common.Address, action ActionDescriptor, description string) (uint64, error) {
	var id uint64
	err := g.apply(func() (Event, error) {
		if !g.isEligible(proposer) {
			return Event{}, errors.Wrapf(ErrUnauthorized, "%s is not an eligible agent", proposer)
		}
		if _, err := g.resolver.Resolve(action); err != nil {
			return Event{}, errors.Wrapf(ErrInvalidArgument, "action: %s", err)
		}

		now := g.clock.Now()
		start := now + g.params.VotingDelay
		end := start + g.params.VotingPeriod
		if start < now || end < start {
			return Event{}, errors.Wrap(ErrInvalidArgument, "voting window overflows the block range")
		}

		id = g.store.ProposalCount() + 1
		p := Proposal{
			ID:          id,
			Proposer:    proposer,
			Action:      action,
			ActionHash:  action.Hash(),
			Description: description,
			StartBlock:  start,
			EndBlock:    end,
		}
		if g.policy == QuorumSnapshot {
			q := g.quorum()
			p.QuorumVotes = &q
		}

		ws := &writeSet{}
		ws.putProposal(p)
		ws.putProposalCount(id)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithFields(logrus.Fields{
			"id":       id,
			"proposer": proposer,
			"start":    start,
			"end":      end,
			"action":   p.ActionHash,
		}).Info("proposal created")
		return Event{Kind: ProposalCreated, Block: now, Agent: proposer, ProposalID: id}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// State derives the proposal state, it never mutates the proposal. It fails with
// ErrStaleClock if the clock is behind a block the store has already seen.
func (g *Governor) State(id uint64) (ProposalState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeClock(); err != nil {
		return 0, err
	}
	p, err := g.proposal(id)
	if err != nil {
		return 0, err
	}
	return g.state(&p), nil
}

func (g *Governor) state(p *Proposal) ProposalState {
	if p.Canceled {
		return Canceled
	}
	if p.Executed {
		return Executed
	}

	now := g.clock.Now()
	if now < p.StartBlock {
		return Pending
	}
	if now <= p.EndBlock {
		return Active
	}

	if !ReachedQuorum(p, g.quorumFor(p)) {
		return Defeated
	}
	// ties are defeated, abstain only counts toward quorum
	if p.ForVotes > p.AgainstVotes {
		return Succeeded
	}
	return Defeated
}

// Settled derives the proposal state and reports whether it can still change.
func (g *Governor) Settled(id uint64) (ProposalState, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeClock(); err != nil {
		return 0, false, err
	}
	p, err := g.proposal(id)
	if err != nil {
		return 0, false, err
	}
	state := g.state(&p)
	return state, settled(&p, state), nil
}

// settled is true once nothing but a stored flag could move state. A live quorum
// moves with the total voting power, so a proposal defeated only for lack of quorum
// stays open.
func settled(p *Proposal, state ProposalState) bool {
	if state.Terminal() {
		return true
	}
	if state == Defeated {
		return p.QuorumVotes != nil || p.ForVotes <= p.AgainstVotes
	}
	return false
}

// CancelProposal is allowed to the proposer and the administrator while the proposal
// is pending or active.
func (g *Governor) CancelProposal(caller common.Address, id uint64) error {
	return g.apply(func() (Event, error) {
		p, err := g.proposal(id)
		if err != nil {
			return Event{}, err
		}
		if caller == (common.Address{}) || caller != p.Proposer {
			if err := g.authz.Authorize(caller, OpCancelProposal); err != nil {
				return Event{}, err
			}
		}
		if p.Executed {
			return Event{}, errors.Wrapf(ErrAlreadyExecuted, "proposal %d", id)
		}
		if p.Canceled {
			return Event{}, errors.Wrapf(ErrAlreadyCanceled, "proposal %d", id)
		}
		if state := g.state(&p); state != Pending && state != Active {
			return Event{}, errors.Wrapf(ErrProposalFinalized, "proposal %d is %s", id, state)
		}

		p.Canceled = true
		ws := &writeSet{}
		ws.putProposal(p)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithFields(logrus.Fields{"id": id, "caller": caller}).Info("proposal canceled")
		return Event{Kind: ProposalCanceled, Block: g.clock.Now(), Agent: caller, ProposalID: id}, nil
	})
}

func (g *Governor) Proposal(id uint64) (Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proposal(id)
}

func (g *Governor) proposal(id uint64) (Proposal, error) {
	p, ok, err := g.store.Proposal(id)
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, errors.Wrapf(ErrNotFound, "proposal %d", id)
	}
	return p, nil
}

// ProposalCount is the highest proposal id assigned so far.
func (g *Governor) ProposalCount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.ProposalCount()
}
