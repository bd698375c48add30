package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumVotes(t *testing.T) {
	const max = ^uint64(0)

	tests := []struct {
		total uint64
		bps   uint64
		want  uint64
	}{
		{total: 300, bps: 4000, want: 120},
		{total: 300, bps: 0, want: 0},
		{total: 300, bps: 10000, want: 300},
		{total: 0, bps: 4000, want: 0},
		{total: 7, bps: 5000, want: 3},
		{total: 9999, bps: 1, want: 0},
		{total: 10000, bps: 1, want: 1},
		{total: max, bps: 10000, want: max},
		{total: max, bps: 5000, want: max / 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuorumVotes(tt.total, tt.bps), "total %d bps %d", tt.total, tt.bps)
	}
}

func TestReachedQuorum(t *testing.T) {
	p := &Proposal{ForVotes: 40, AgainstVotes: 30, AbstainVotes: 50}
	assert.True(t, ReachedQuorum(p, 120))
	assert.False(t, ReachedQuorum(p, 121))
	assert.True(t, ReachedQuorum(&Proposal{}, 0))

	// the sum does not wrap around
	huge := &Proposal{ForVotes: ^uint64(0), AgainstVotes: ^uint64(0), AbstainVotes: 2}
	assert.True(t, ReachedQuorum(huge, ^uint64(0)))
}

func TestZeroQuorum(t *testing.T) {
	env := newTestEnv(t, Params{QuorumBasisPoints: 0, VotingDelay: 0, VotingPeriod: 3}, QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 100)

	// no votes: quorum holds but for does not beat against
	id := env.propose(t, alice, noopAction)
	env.endVoting(t, id)
	requireState(t, env.gov, id, Defeated)

	id = env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(bob, id, For))
	env.endVoting(t, id)
	requireState(t, env.gov, id, Succeeded)
}

func TestFullQuorum(t *testing.T) {
	env := newTestEnv(t, Params{QuorumBasisPoints: 10000, VotingDelay: 0, VotingPeriod: 3}, QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 1)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	env.endVoting(t, id)
	requireState(t, env.gov, id, Defeated)

	id = env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	require.Nil(t, env.gov.CastVote(bob, id, Abstain))
	env.endVoting(t, id)
	requireState(t, env.gov, id, Succeeded)
}

// three agents of 100 at 50%, only one votes
func quorumPolicyEnv(t *testing.T, policy QuorumPolicy) (*testEnv, uint64) {
	env := newTestEnv(t, Params{QuorumBasisPoints: 5000, VotingDelay: 1, VotingPeriod: 10}, policy)
	env.agent(t, alice, 100)
	env.agent(t, bob, 100)
	env.agent(t, carol, 100)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	reached, err := env.gov.HasReachedQuorum(id)
	require.Nil(t, err)
	require.False(t, reached)

	require.Nil(t, env.gov.DeactivateAgent(admin, bob))
	require.Nil(t, env.gov.DeactivateAgent(admin, carol))
	assert.Equal(t, uint64(50), env.gov.Quorum())
	return env, id
}

func TestLiveQuorumFollowsMembership(t *testing.T) {
	env, id := quorumPolicyEnv(t, QuorumLive)

	reached, err := env.gov.HasReachedQuorum(id)
	require.Nil(t, err)
	assert.True(t, reached)
	env.endVoting(t, id)
	requireState(t, env.gov, id, Succeeded)
}

func TestSnapshotQuorumIsFixed(t *testing.T) {
	env, id := quorumPolicyEnv(t, QuorumSnapshot)

	p, err := env.gov.Proposal(id)
	require.Nil(t, err)
	require.NotNil(t, p.QuorumVotes)
	assert.Equal(t, uint64(150), *p.QuorumVotes)

	reached, err := env.gov.HasReachedQuorum(id)
	require.Nil(t, err)
	assert.False(t, reached)
	env.endVoting(t, id)
	requireState(t, env.gov, id, Defeated)
}
