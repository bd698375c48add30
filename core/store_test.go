package core

import (
	"sync/atomic"
	"testing"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenDiskStorage panics on batch commit while broken is set, the way the leveldb
// backend reports I/O errors.
type brokenDiskStorage struct {
	storage.Storage
	broken atomic.Bool
}

func (s *brokenDiskStorage) NewBatch() storage.Batch {
	return &brokenDiskBatch{Batch: s.Storage.NewBatch(), s: s}
}

type brokenDiskBatch struct {
	storage.Batch
	s *brokenDiskStorage
}

func (b *brokenDiskBatch) Commit() {
	if b.s.broken.Load() {
		panic("write failed: input/output error")
	}
	b.Batch.Commit()
}

func TestVoteIsAllOrNothing(t *testing.T) {
	db, err := leveldb.New(t.TempDir())
	require.Nil(t, err)
	disk := &brokenDiskStorage{Storage: db}
	clock := NewManualClock(startBlock)
	actions := NewActionRegistry()
	cfg := Config{Admin: admin, Params: testParams()}

	gov, err := NewGovernor(cfg, disk, clock, actions, log.New())
	require.Nil(t, err)
	for _, id := range []common.Address{alice, bob} {
		require.Nil(t, gov.RegisterAgent(admin, id, 100, ""))
		require.Nil(t, gov.VerifyAgent(admin, id))
	}
	id, err := gov.CreateProposal(alice, noopAction, "")
	require.Nil(t, err)
	p, err := gov.Proposal(id)
	require.Nil(t, err)
	clock.Set(p.StartBlock)
	_, err = gov.State(id)
	require.Nil(t, err)

	disk.broken.Store(true)
	assert.Panics(t, func() { _ = gov.CastVote(bob, id, For) })
	disk.broken.Store(false)

	// nothing of the vote reached storage
	reopened, err := NewGovernor(cfg, db, clock, actions, log.New())
	require.Nil(t, err)
	voted, err := reopened.HasVoted(id, bob)
	require.Nil(t, err)
	assert.False(t, voted)
	p, err = reopened.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(0), p.ForVotes)

	// nor the cache, the vote can be cast again
	voted, err = gov.HasVoted(id, bob)
	require.Nil(t, err)
	assert.False(t, voted)
	require.Nil(t, gov.CastVote(bob, id, For))
	reopened, err = NewGovernor(cfg, db, clock, actions, log.New())
	require.Nil(t, err)
	p, err = reopened.Proposal(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(100), p.ForVotes)
}

func TestStoreCommitEncodeFailure(t *testing.T) {
	db, err := leveldb.New(t.TempDir())
	require.Nil(t, err)
	store, err := NewStore(db)
	require.Nil(t, err)

	ws := &writeSet{}
	ws.putProposalCount(3)
	ws.putJSON([]byte("bad"), func() {})
	assert.NotNil(t, store.commit(ws))
	assert.Equal(t, uint64(0), store.ProposalCount())
}
