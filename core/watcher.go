package core

import (
	"context"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
)

type HeadSource interface {
	SubscribeHeads(ch chan<- uint64) event.Subscription
}

// GovernorOpener hands the watcher a governor for one pass. release is called when
// the pass is over.
type GovernorOpener func() (gov *Governor, release func(), err error)

// StaticGovernor keeps using gov for every pass.
func StaticGovernor(gov *Governor) GovernorOpener {
	return func() (*Governor, func(), error) {
		return gov, func() {}, nil
	}
}

// Watcher follows new heads and reports proposal state transitions. With autoExecute
// it executes proposals as soon as they succeed.
type Watcher struct {
	ctx         context.Context
	cancel      context.CancelFunc
	open        GovernorOpener
	logger      logrus.FieldLogger
	autoExecute bool

	heads   chan uint64
	sub     event.Subscription
	pending mapset.Set[uint64]
	states  map[uint64]ProposalState
	scanned uint64
	wg      sync.WaitGroup
}

func NewWatcher(ctx context.Context, open GovernorOpener, autoExecute bool, logger logrus.FieldLogger) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	return &Watcher{
		ctx:         ctx,
		cancel:      cancel,
		open:        open,
		logger:      logger,
		autoExecute: autoExecute,
		heads:       make(chan uint64, HeadChanMaxSize),
		pending:     mapset.NewSet[uint64](),
		states:      make(map[uint64]ProposalState),
	}
}

func (w *Watcher) Start(source HeadSource) {
	w.Check()
	w.sub = source.SubscribeHeads(w.heads)

	w.wg.Add(1)
	go w.listenHeads()
}

func (w *Watcher) listenHeads() {
	defer w.wg.Done()
	w.logger.Info("watch proposals")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("context done")
			return
		case err := <-w.sub.Err():
			if err != nil {
				w.logger.Errorf("head subscription: %s", err)
			}
			return
		case head := <-w.heads:
			w.logger.Debugf("check proposals at block %d", head)
			w.Check()
		}
	}
}

// Check picks up proposals created since the last call and re-derives the state of
// every proposal that is not settled yet.
func (w *Watcher) Check() {
	gov, release, err := w.open()
	if err != nil {
		w.logger.Errorf("open governor: %s", err)
		return
	}
	defer release()

	count := gov.ProposalCount()
	for id := w.scanned + 1; id <= count; id++ {
		w.pending.Add(id)
	}
	w.scanned = count

	for _, id := range w.Open() {
		state, done, err := gov.Settled(id)
		if err != nil {
			w.logger.Errorf("derive state of proposal %d: %s", id, err)
			continue
		}
		if prev, ok := w.states[id]; !ok || prev != state {
			w.logger.WithFields(logrus.Fields{"id": id, "state": state}).Info("proposal state changed")
			w.states[id] = state
		}

		if state == Succeeded && w.autoExecute {
			if _, err := gov.ExecuteProposal(w.ctx, id); err != nil {
				w.logger.Errorf("execute proposal %d: %s", id, err)
				continue
			}
			w.states[id] = Executed
			done = true
		}

		if done {
			w.pending.Remove(id)
			delete(w.states, id)
		}
	}
}

// Open lists the proposals the watcher still follows.
func (w *Watcher) Open() []uint64 {
	ids := w.pending.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Watcher) Stop() {
	w.cancel()
	if w.sub != nil {
		w.sub.Unsubscribe()
	}
	w.wg.Wait()
}
