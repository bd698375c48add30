package core

import (
	"sync"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Operation uint8

const (
	OpRegisterAgent Operation = iota
	OpVerifyAgent
	OpDeactivateAgent
	OpReactivateAgent
	OpUpdateVotingPower
	OpUpdateQuorum
	OpUpdateVotingDelay
	OpUpdateVotingPeriod
	OpCancelProposal
)

// Authorizer decides which principals may run privileged operations.
type Authorizer interface {
	Authorize(caller common.Address, op Operation) error
}

// AdminAuthorizer grants every privileged operation to a single administrator.
type AdminAuthorizer struct {
	Admin common.Address
}

func (a AdminAuthorizer) Authorize(caller common.Address, op Operation) error {
	if caller == (common.Address{}) || caller != a.Admin {
		return errors.Wrapf(ErrUnauthorized, "%s is not the administrator", caller)
	}
	return nil
}

type Config struct {
	Admin        common.Address
	Params       Params
	QuorumPolicy QuorumPolicy

	// Authorizer replaces the admin check when set
	Authorizer Authorizer
}

// Governor runs registry, proposals, voting, quorum and execution over one store.
// Every operation is serialized by mu, only action execution runs without it.
type Governor struct {
	mu       sync.Mutex
	store    *Store
	clock    Clock
	resolver ActionResolver
	authz    Authorizer
	policy   QuorumPolicy
	params   Params
	logger   logrus.FieldLogger
	feed     event.Feed
	seq      uint64
}

func NewGovernor(cfg Config, db storage.Storage, clock Clock, resolver ActionResolver, logger logrus.FieldLogger) (*Governor, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.QuorumPolicy == "" {
		cfg.QuorumPolicy = QuorumLive
	}
	if !cfg.QuorumPolicy.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown quorum policy %q", cfg.QuorumPolicy)
	}
	authz := cfg.Authorizer
	if authz == nil {
		if cfg.Admin == (common.Address{}) {
			return nil, errors.Wrap(ErrInvalidArgument, "administrator must not be the zero address")
		}
		authz = AdminAuthorizer{Admin: cfg.Admin}
	}

	store, err := NewStore(db)
	if err != nil {
		return nil, err
	}

	g := &Governor{
		store:    store,
		clock:    clock,
		resolver: resolver,
		authz:    authz,
		policy:   cfg.QuorumPolicy,
		params:   cfg.Params,
		logger:   logger,
	}

	if now, last := clock.Now(), store.LastBlock(); now < last {
		return nil, errors.Wrapf(ErrStaleClock, "clock at block %d, store at block %d", now, last)
	}

	// params updated by the administrator survive restarts
	stored, ok, err := store.Params()
	if err != nil {
		return nil, err
	}
	if ok {
		if stored != cfg.Params {
			logger.Warnf("using stored governance params %+v instead of configured %+v", stored, cfg.Params)
		}
		g.params = stored
	} else {
		ws := &writeSet{}
		ws.putParams(cfg.Params)
		if err := store.commit(ws); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// SubscribeEvents delivers every event emitted after the call. The channel should be
// buffered, a slow subscriber delays callers of mutating operations.
//
// Events are sent once the lock is released, so concurrent operations may be
// delivered out of order. Seq gives the order the governor applied them in.
func (g *Governor) SubscribeEvents(ch chan<- Event) event.Subscription {
	return g.feed.Subscribe(ch)
}

// emit must be called without holding mu.
func (g *Governor) emit(ev Event) {
	g.feed.Send(ev)
}

// nextSeq must be called with mu held.
func (g *Governor) nextSeq() uint64 {
	g.seq++
	return g.seq
}

// observeClock refuses a clock behind the last block the store has seen, and records
// the block otherwise. Must be called with mu held.
func (g *Governor) observeClock() error {
	now, last := g.clock.Now(), g.store.LastBlock()
	if now < last {
		return errors.Wrapf(ErrStaleClock, "clock at block %d, store at block %d", now, last)
	}
	if now > last {
		ws := &writeSet{}
		ws.putLastBlock(now)
		return g.store.commit(ws)
	}
	return nil
}

func (g *Governor) Params() Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params
}

func (g *Governor) QuorumPolicy() QuorumPolicy {
	return g.policy
}

func (g *Governor) UpdateQuorum(caller common.Address, basisPoints uint64) error {
	return g.updateParams(caller, OpUpdateQuorum, QuorumUpdated, func(p *Params) (uint64, uint64) {
		old := p.QuorumBasisPoints
		p.QuorumBasisPoints = basisPoints
		return old, basisPoints
	})
}

func (g *Governor) UpdateVotingDelay(caller common.Address, delay uint64) error {
	return g.updateParams(caller, OpUpdateVotingDelay, VotingDelayUpdated, func(p *Params) (uint64, uint64) {
		old := p.VotingDelay
		p.VotingDelay = delay
		return old, delay
	})
}

func (g *Governor) UpdateVotingPeriod(caller common.Address, period uint64) error {
	return g.updateParams(caller, OpUpdateVotingPeriod, VotingPeriodUpdated, func(p *Params) (uint64, uint64) {
		old := p.VotingPeriod
		p.VotingPeriod = period
		return old, period
	})
}

func (g *Governor) updateParams(caller common.Address, op Operation, kind EventKind, set func(p *Params) (uint64, uint64)) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, op); err != nil {
			return Event{}, err
		}
		next := g.params
		old, val := set(&next)
		if err := next.Validate(); err != nil {
			return Event{}, err
		}

		ws := &writeSet{}
		ws.putParams(next)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}
		g.params = next

		g.logger.WithFields(logrus.Fields{"old": old, "new": val}).Infof("%s", kind)
		return Event{Kind: kind, Block: g.clock.Now(), OldValue: old, NewValue: val}, nil
	})
}

// apply runs op under the lock and emits its event once the lock is released.
func (g *Governor) apply(op func() (Event, error)) error {
	ev, err := func() (Event, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if err := g.observeClock(); err != nil {
			return Event{}, err
		}
		ev, err := op()
		if err != nil {
			return Event{}, err
		}
		ev.Seq = g.nextSeq()
		return ev, nil
	}()
	if err != nil {
		return err
	}
	g.emit(ev)
	return nil
}
