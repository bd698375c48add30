package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CastVote records the voter's choice with its current voting power as weight. The
// receipt and the tally are committed together or not at all.
func (g *Governor) CastVote(voter common.Address, id uint64, choice VoteType) error {
	return g.apply(func() (Event, error) {
		p, err := g.proposal(id)
		if err != nil {
			return Event{}, err
		}
		agent, ok, err := g.store.Agent(voter)
		if err != nil {
			return Event{}, err
		}
		if !ok || !agent.Eligible() {
			return Event{}, errors.Wrapf(ErrUnauthorized, "%s is not an eligible agent", voter)
		}
		if state := g.state(&p); state != Active {
			return Event{}, errors.Wrapf(ErrVotingNotActive, "proposal %d is %s", id, state)
		}
		_, voted, err := g.store.Receipt(id, voter)
		if err != nil {
			return Event{}, err
		}
		if voted {
			return Event{}, errors.Wrapf(ErrDuplicateVote, "agent %s on proposal %d", voter, id)
		}
		if !choice.Valid() {
			return Event{}, errors.Wrapf(ErrInvalidChoice, "choice %d", choice)
		}

		weight := agent.VotingPower
		var tally *uint64
		switch choice {
		case For:
			tally = &p.ForVotes
		case Against:
			tally = &p.AgainstVotes
		case Abstain:
			tally = &p.AbstainVotes
		}
		if *tally+weight < *tally {
			return Event{}, errors.Wrapf(ErrInvalidArgument, "%s tally of proposal %d overflows", choice, id)
		}
		*tally += weight

		block := g.clock.Now()
		receipt := VoteReceipt{
			ProposalID:  id,
			Voter:       voter,
			Choice:      choice,
			Weight:      weight,
			CastAtBlock: block,
		}
		ws := &writeSet{}
		ws.putReceipt(receipt)
		ws.putProposal(p)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithFields(logrus.Fields{
			"id":     id,
			"voter":  voter,
			"choice": choice,
			"weight": weight,
		}).Info("vote cast")
		return Event{Kind: VoteCast, Block: block, Agent: voter, ProposalID: id, Choice: choice, Weight: weight}, nil
	})
}

// Receipt returns the vote of voter on proposal id, ok is false if there is none.
func (g *Governor) Receipt(id uint64, voter common.Address) (VoteReceipt, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Receipt(id, voter)
}

func (g *Governor) HasVoted(id uint64, voter common.Address) (bool, error) {
	_, ok, err := g.Receipt(id, voter)
	return ok, err
}
