package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	agentKeyPrefix      = "agent-"
	agentIndexKeyPrefix = "agent-index-"
	agentCountKey       = "agent-count"
	totalVotingPowerKey = "total-voting-power"
	proposalKeyPrefix   = "proposal-"
	proposalCountKey    = "proposal-count"
	receiptKeyPrefix    = "receipt-"
	paramsKey           = "params"
	lastBlockKey        = "last-block"

	recordCacheSize = 1024
)

func agentKey(id common.Address) []byte {
	return []byte(agentKeyPrefix + id.Hex())
}

func agentIndexKey(i uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", agentIndexKeyPrefix, i))
}

func proposalKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", proposalKeyPrefix, id))
}

func receiptKey(id uint64, voter common.Address) []byte {
	return []byte(fmt.Sprintf("%s%d-%s", receiptKeyPrefix, id, voter.Hex()))
}

// Store persists governor records in a KV storage. Values handed out are copies,
// mutations only reach storage through a committed writeSet.
type Store struct {
	db        storage.Storage
	agents    *lru.Cache
	proposals *lru.Cache
}

func NewStore(db storage.Storage) (*Store, error) {
	agents, err := lru.New(recordCacheSize)
	if err != nil {
		return nil, err
	}
	proposals, err := lru.New(recordCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:        db,
		agents:    agents,
		proposals: proposals,
	}, nil
}

func (s *Store) getUint64(key string) uint64 {
	data := s.db.Get([]byte(key))
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func (s *Store) getJSON(key []byte, v any) (bool, error) {
	data := s.db.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (s *Store) Agent(id common.Address) (Agent, bool, error) {
	if v, ok := s.agents.Get(id); ok {
		return v.(Agent), true, nil
	}
	var a Agent
	ok, err := s.getJSON(agentKey(id), &a)
	if err != nil || !ok {
		return Agent{}, false, err
	}
	s.agents.Add(id, a)
	return a, true, nil
}

func (s *Store) AgentCount() uint64 {
	return s.getUint64(agentCountKey)
}

// AgentIDs lists every registered agent in registration order.
func (s *Store) AgentIDs() []common.Address {
	n := s.AgentCount()
	ids := make([]common.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		data := s.db.Get(agentIndexKey(i))
		if data == nil {
			continue
		}
		ids = append(ids, common.BytesToAddress(data))
	}
	return ids
}

func (s *Store) TotalVotingPower() uint64 {
	return s.getUint64(totalVotingPowerKey)
}

func (s *Store) Proposal(id uint64) (Proposal, bool, error) {
	if v, ok := s.proposals.Get(id); ok {
		return v.(Proposal), true, nil
	}
	var p Proposal
	ok, err := s.getJSON(proposalKey(id), &p)
	if err != nil || !ok {
		return Proposal{}, false, err
	}
	s.proposals.Add(id, p)
	return p, true, nil
}

func (s *Store) ProposalCount() uint64 {
	return s.getUint64(proposalCountKey)
}

func (s *Store) Receipt(id uint64, voter common.Address) (VoteReceipt, bool, error) {
	var r VoteReceipt
	ok, err := s.getJSON(receiptKey(id, voter), &r)
	return r, ok, err
}

// LastBlock is the highest block any committed operation ran at.
func (s *Store) LastBlock() uint64 {
	return s.getUint64(lastBlockKey)
}

func (s *Store) Params() (Params, bool, error) {
	var p Params
	ok, err := s.getJSON([]byte(paramsKey), &p)
	return p, ok, err
}

// writeSet stages the writes of one operation. Nothing reaches storage unless every
// value encoded, and then all of it lands in one batch.
type writeSet struct {
	keys      [][]byte
	values    [][]byte
	agents    []Agent
	proposals []Proposal
	err       error
}

func (w *writeSet) put(key []byte, value []byte) {
	w.keys = append(w.keys, key)
	w.values = append(w.values, value)
}

func (w *writeSet) putJSON(key []byte, v any) {
	if w.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		w.err = errors.Wrapf(err, "encode %s", key)
		return
	}
	w.put(key, data)
}

func (w *writeSet) putUint64(key string, n uint64) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, n)
	w.put([]byte(key), data)
}

func (w *writeSet) putAgent(a Agent) {
	w.putJSON(agentKey(a.ID), a)
	w.agents = append(w.agents, a)
}

func (w *writeSet) indexAgent(i uint64, id common.Address) {
	w.put(agentIndexKey(i), id.Bytes())
	w.putUint64(agentCountKey, i+1)
}

func (w *writeSet) putTotalVotingPower(n uint64) {
	w.putUint64(totalVotingPowerKey, n)
}

func (w *writeSet) putProposal(p Proposal) {
	w.putJSON(proposalKey(p.ID), p)
	w.proposals = append(w.proposals, p)
}

func (w *writeSet) putProposalCount(n uint64) {
	w.putUint64(proposalCountKey, n)
}

func (w *writeSet) putReceipt(r VoteReceipt) {
	w.putJSON(receiptKey(r.ProposalID, r.Voter), r)
}

func (w *writeSet) putParams(p Params) {
	w.putJSON([]byte(paramsKey), p)
}

func (w *writeSet) putLastBlock(n uint64) {
	w.putUint64(lastBlockKey, n)
}

func (s *Store) commit(w *writeSet) error {
	if w.err != nil {
		return w.err
	}
	batch := s.db.NewBatch()
	for i, key := range w.keys {
		batch.Put(key, w.values[i])
	}
	batch.Commit()

	for _, a := range w.agents {
		s.agents.Add(a.ID, a)
	}
	for _, p := range w.proposals {
		s.proposals.Add(p.ID, p)
	}
	return nil
}
