package core

import (
	"github.com/holiman/uint256"
)

const MaxBasisPoints = 10000

// QuorumVotes is floor(totalVotingPower * basisPoints / 10000). The product is taken
// in 256 bits so it cannot overflow.
func QuorumVotes(totalVotingPower, basisPoints uint64) uint64 {
	q := new(uint256.Int).Mul(uint256.NewInt(totalVotingPower), uint256.NewInt(basisPoints))
	q.Div(q, uint256.NewInt(MaxBasisPoints))
	// basisPoints <= 10000 keeps the quotient within uint64
	return q.Uint64()
}

// Participation is forVotes + againstVotes + abstainVotes.
func Participation(p *Proposal) *uint256.Int {
	sum := uint256.NewInt(p.ForVotes)
	sum.Add(sum, uint256.NewInt(p.AgainstVotes))
	return sum.Add(sum, uint256.NewInt(p.AbstainVotes))
}

// ReachedQuorum reports whether the participation on p meets quorum votes.
func ReachedQuorum(p *Proposal, quorum uint64) bool {
	return !Participation(p).Lt(uint256.NewInt(quorum))
}

// Quorum is the number of votes a proposal needs right now under the live policy.
func (g *Governor) Quorum() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quorum()
}

func (g *Governor) quorum() uint64 {
	return QuorumVotes(g.store.TotalVotingPower(), g.params.QuorumBasisPoints)
}

// quorumFor honours the snapshot taken at creation, if any.
func (g *Governor) quorumFor(p *Proposal) uint64 {
	if p.QuorumVotes != nil {
		return *p.QuorumVotes
	}
	return g.quorum()
}

func (g *Governor) HasReachedQuorum(id uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.proposal(id)
	if err != nil {
		return false, err
	}
	return ReachedQuorum(&p, g.quorumFor(&p)), nil
}
