package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0xad00000000000000000000000000000000000001")
	alice    = common.HexToAddress("0x110000000000000000000000000000000000ffff")
	bob      = common.HexToAddress("0x220000000000000000000000000000000000ffff")
	carol    = common.HexToAddress("0x330000000000000000000000000000000000ffff")
	stranger = common.HexToAddress("0x990000000000000000000000000000000000ffff")

	noopAction = ActionDescriptor{Kind: NoopActionKind, Target: "upgrade"}
)

const startBlock = 100

func testParams() Params {
	return Params{QuorumBasisPoints: 4000, VotingDelay: 1, VotingPeriod: 10}
}

type testEnv struct {
	gov     *Governor
	db      storage.Storage
	clock   *ManualClock
	actions *ActionRegistry
}

func newTestEnv(t *testing.T, params Params, policy QuorumPolicy) *testEnv {
	t.Helper()

	db, err := leveldb.New(t.TempDir())
	require.Nil(t, err)

	logger := log.New()
	logger.SetLevel(log.ParseLevel("debug"))

	env := &testEnv{
		db:      db,
		clock:   NewManualClock(startBlock),
		actions: NewActionRegistry(),
	}
	env.gov, err = NewGovernor(Config{Admin: admin, Params: params, QuorumPolicy: policy}, db, env.clock, env.actions, logger)
	require.Nil(t, err)
	return env
}

// agent registers and verifies id with the given power.
func (e *testEnv) agent(t *testing.T, id common.Address, power uint64) {
	t.Helper()
	require.Nil(t, e.gov.RegisterAgent(admin, id, power, "agent"))
	require.Nil(t, e.gov.VerifyAgent(admin, id))
}

// propose creates a proposal and moves the clock into its voting window.
func (e *testEnv) propose(t *testing.T, proposer common.Address, action ActionDescriptor) uint64 {
	t.Helper()
	id, err := e.gov.CreateProposal(proposer, action, "proposal")
	require.Nil(t, err)
	p, err := e.gov.Proposal(id)
	require.Nil(t, err)
	e.clock.Set(p.StartBlock)
	return id
}

func (e *testEnv) endVoting(t *testing.T, id uint64) {
	t.Helper()
	p, err := e.gov.Proposal(id)
	require.Nil(t, err)
	e.clock.Set(p.EndBlock + 1)
}

func (e *testEnv) requireTotalConsistent(t *testing.T) {
	t.Helper()
	scanned, err := e.gov.RecomputeTotalVotingPower()
	require.Nil(t, err)
	require.Equal(t, scanned, e.gov.TotalVotingPower())
}

func requireState(t *testing.T, gov *Governor, id uint64, want ProposalState) {
	t.Helper()
	got, err := gov.State(id)
	require.Nil(t, err)
	require.Equal(t, want, got, "proposal %d is %s, want %s", id, got, want)
}

func TestNewGovernorInvalidConfig(t *testing.T) {
	db, err := leveldb.New(t.TempDir())
	require.Nil(t, err)
	clock := NewManualClock(0)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "quorum above 100%", cfg: Config{Admin: admin, Params: Params{QuorumBasisPoints: 10001, VotingPeriod: 1}}},
		{name: "zero voting period", cfg: Config{Admin: admin, Params: Params{QuorumBasisPoints: 100}}},
		{name: "zero admin", cfg: Config{Params: testParams()}},
		{name: "unknown policy", cfg: Config{Admin: admin, Params: testParams(), QuorumPolicy: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGovernor(tt.cfg, db, clock, NewActionRegistry(), log.New())
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}

	_, err = NewGovernor(Config{Admin: admin, Params: Params{QuorumBasisPoints: 10000, VotingPeriod: 1}}, db, clock, NewActionRegistry(), log.New())
	assert.Nil(t, err)
}

// three agents of power 100, 150 and 50 at 40% quorum need 120 votes
func TestScenarioQuorum(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 150)
	env.agent(t, carol, 50)

	assert.Equal(t, uint64(300), env.gov.TotalVotingPower())
	assert.Equal(t, uint64(120), env.gov.Quorum())
	env.requireTotalConsistent(t)
}

func TestScenarioAgainstMajorityDefeated(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 150)
	env.agent(t, carol, 50)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	require.Nil(t, env.gov.CastVote(bob, id, Against))
	require.Nil(t, env.gov.CastVote(carol, id, Abstain))

	reached, err := env.gov.HasReachedQuorum(id)
	require.Nil(t, err)
	assert.True(t, reached)

	env.endVoting(t, id)
	requireState(t, env.gov, id, Defeated)

	_, err = env.gov.ExecuteProposal(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotSucceeded))
}

func TestScenarioSucceededExecutedOnce(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 150)
	env.agent(t, carol, 50)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(bob, id, For))
	require.Nil(t, env.gov.CastVote(alice, id, Against))

	p, err := env.gov.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(150), p.ForVotes)
	assert.Equal(t, uint64(100), p.AgainstVotes)
	assert.Equal(t, uint64(0), p.AbstainVotes)

	env.endVoting(t, id)
	requireState(t, env.gov, id, Succeeded)

	_, err = env.gov.ExecuteProposal(context.Background(), id)
	require.Nil(t, err)
	requireState(t, env.gov, id, Executed)

	_, err = env.gov.ExecuteProposal(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotSucceeded), "got %v", err)
}

func TestScenarioTieDefeated(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 100)
	env.agent(t, carol, 50)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	require.Nil(t, env.gov.CastVote(bob, id, Against))

	reached, err := env.gov.HasReachedQuorum(id)
	require.Nil(t, err)
	assert.True(t, reached)

	env.endVoting(t, id)
	requireState(t, env.gov, id, Defeated)
}

func TestScenarioCancelRules(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 150)

	id := env.propose(t, alice, noopAction)
	err := env.gov.CancelProposal(stranger, id)
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
	err = env.gov.CancelProposal(bob, id)
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)

	require.Nil(t, env.gov.CastVote(alice, id, For))
	env.endVoting(t, id)
	_, err = env.gov.ExecuteProposal(context.Background(), id)
	require.Nil(t, err)

	err = env.gov.CancelProposal(alice, id)
	assert.True(t, errors.Is(err, ErrAlreadyExecuted), "got %v", err)
	err = env.gov.CancelProposal(admin, id)
	assert.True(t, errors.Is(err, ErrAlreadyExecuted), "got %v", err)
}

func TestScenarioDuplicateRegistration(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	require.Nil(t, env.gov.RegisterAgent(admin, alice, 100, "first"))
	total := env.gov.TotalVotingPower()

	err := env.gov.RegisterAgent(admin, alice, 500, "second")
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
	assert.Equal(t, total, env.gov.TotalVotingPower())

	a, err := env.gov.Agent(alice)
	require.Nil(t, err)
	assert.Equal(t, "first", a.Metadata)
	env.requireTotalConsistent(t)
}

func TestStateIsPure(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)

	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(alice, id, For))
	env.endVoting(t, id)

	for i := 0; i < 5; i++ {
		requireState(t, env.gov, id, Succeeded)
	}
	p, err := env.gov.Proposal(id)
	require.Nil(t, err)
	assert.False(t, p.Executed)
}

func TestUpdateParams(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)

	err := env.gov.UpdateQuorum(stranger, 5000)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	err = env.gov.UpdateQuorum(admin, 10001)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	err = env.gov.UpdateVotingPeriod(admin, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, testParams(), env.gov.Params())

	events := make(chan Event, 4)
	sub := env.gov.SubscribeEvents(events)
	defer sub.Unsubscribe()

	require.Nil(t, env.gov.UpdateQuorum(admin, 10000))
	require.Nil(t, env.gov.UpdateVotingDelay(admin, 0))
	require.Nil(t, env.gov.UpdateVotingPeriod(admin, 5))

	ev := <-events
	assert.Equal(t, QuorumUpdated, ev.Kind)
	assert.Equal(t, uint64(4000), ev.OldValue)
	assert.Equal(t, uint64(10000), ev.NewValue)
	assert.Equal(t, VotingDelayUpdated, (<-events).Kind)
	assert.Equal(t, VotingPeriodUpdated, (<-events).Kind)

	want := Params{QuorumBasisPoints: 10000, VotingDelay: 0, VotingPeriod: 5}
	assert.Equal(t, want, env.gov.Params())

	// a new proposal uses the updated window
	env.agent(t, alice, 10)
	id, err := env.gov.CreateProposal(alice, noopAction, "")
	require.Nil(t, err)
	p, err := env.gov.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(startBlock), p.StartBlock)
	assert.Equal(t, uint64(startBlock+5), p.EndBlock)

	// stored params win over the configured ones
	reopened, err := NewGovernor(Config{Admin: admin, Params: testParams()}, env.db, env.clock, env.actions, log.New())
	require.Nil(t, err)
	assert.Equal(t, want, reopened.Params())
}

func TestStatePersists(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)
	env.agent(t, alice, 100)
	env.agent(t, bob, 50)
	id := env.propose(t, alice, noopAction)
	require.Nil(t, env.gov.CastVote(bob, id, Against))

	reopened, err := NewGovernor(Config{Admin: admin, Params: testParams()}, env.db, env.clock, env.actions, log.New())
	require.Nil(t, err)

	assert.Equal(t, uint64(150), reopened.TotalVotingPower())
	assert.Equal(t, uint64(1), reopened.ProposalCount())
	assert.True(t, reopened.IsEligibleVoter(alice))

	p, err := reopened.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(50), p.AgainstVotes)

	r, ok, err := reopened.Receipt(id, bob)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, Against, r.Choice)

	agents, err := reopened.Agents()
	require.Nil(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, alice, agents[0].ID)
	assert.Equal(t, bob, agents[1].ID)
}

// settableClock can be moved backwards, unlike the clocks the governor is built with.
type settableClock struct {
	block atomic.Uint64
}

func (c *settableClock) Now() uint64 {
	return c.block.Load()
}

func TestStaleClockRefused(t *testing.T) {
	db, err := leveldb.New(t.TempDir())
	require.Nil(t, err)
	clock := &settableClock{}
	clock.block.Store(startBlock)
	cfg := Config{Admin: admin, Params: testParams()}

	gov, err := NewGovernor(cfg, db, clock, NewActionRegistry(), log.New())
	require.Nil(t, err)
	require.Nil(t, gov.RegisterAgent(admin, alice, 100, ""))
	require.Nil(t, gov.VerifyAgent(admin, alice))
	require.Nil(t, gov.RegisterAgent(admin, bob, 100, ""))
	require.Nil(t, gov.VerifyAgent(admin, bob))
	id, err := gov.CreateProposal(alice, noopAction, "")
	require.Nil(t, err)

	// only read at block 500, nothing committed there
	clock.block.Store(500)
	requireState(t, gov, id, Defeated)

	clock.block.Store(startBlock + 5)
	err = gov.CastVote(bob, id, Against)
	assert.True(t, errors.Is(err, ErrStaleClock), "got %v", err)
	_, err = gov.State(id)
	assert.True(t, errors.Is(err, ErrStaleClock), "got %v", err)
	_, err = gov.ExecuteProposal(context.Background(), id)
	assert.True(t, errors.Is(err, ErrStaleClock), "got %v", err)

	p, err := gov.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), p.AgainstVotes)

	// a later process with a rewound clock is refused as a whole
	_, err = NewGovernor(cfg, db, NewManualClock(startBlock+5), NewActionRegistry(), log.New())
	assert.True(t, errors.Is(err, ErrStaleClock), "got %v", err)

	reopened, err := NewGovernor(cfg, db, NewManualClock(500), NewActionRegistry(), log.New())
	require.Nil(t, err)
	requireState(t, reopened, id, Defeated)
}

func TestEventSeq(t *testing.T) {
	env := newTestEnv(t, testParams(), QuorumLive)

	const agents = 16
	events := make(chan Event, 2*agents)
	sub := env.gov.SubscribeEvents(events)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		id := common.BytesToAddress([]byte{0xe0, byte(i + 1)})
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Nil(t, env.gov.RegisterAgent(admin, id, 1, ""))
			assert.Nil(t, env.gov.VerifyAgent(admin, id))
		}()
	}
	wg.Wait()

	// every event of one agent arrives after its registration, seqs are unique and gapless
	seen := make(map[uint64]bool)
	registered := make(map[common.Address]uint64)
	var verified []Event
	for i := 0; i < 2*agents; i++ {
		ev := <-events
		assert.False(t, seen[ev.Seq], "seq %d twice", ev.Seq)
		seen[ev.Seq] = true
		switch ev.Kind {
		case AgentRegistered:
			registered[ev.Agent] = ev.Seq
		case AgentVerified:
			verified = append(verified, ev)
		}
	}
	for seq := uint64(1); seq <= 2*agents; seq++ {
		assert.True(t, seen[seq], "seq %d missing", seq)
	}
	for _, ev := range verified {
		assert.Less(t, registered[ev.Agent], ev.Seq)
	}
}
