package core

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ExecuteProposal runs the action of a succeeded proposal exactly once.
//
// The proposal is committed as executed before the action runs and the lock is not
// held while it does, so a reentrant or concurrent call sees Executed and fails. If
// the action fails the executed flag is rolled back and the proposal can be executed
// again later.
func (g *Governor) ExecuteProposal(ctx context.Context, id uint64) ([]byte, error) {
	action, err := g.markExecuted(id)
	if err != nil {
		return nil, err
	}

	result, runErr := action.Execute(ctx)
	if runErr != nil {
		if err := g.rollbackExecuted(id); err != nil {
			g.logger.Errorf("rollback executed flag of proposal %d: %s", id, err)
			return nil, errors.Wrapf(err, "rollback after %s", runErr)
		}
		g.logger.WithField("id", id).Warnf("proposal execution failed: %s", runErr)
		return nil, &executionError{id: id, cause: runErr}
	}

	g.logger.WithField("id", id).Info("proposal executed")
	g.mu.Lock()
	seq := g.nextSeq()
	g.mu.Unlock()
	g.emit(Event{Seq: seq, Kind: ProposalExecuted, Block: g.clock.Now(), ProposalID: id, Result: result})
	return result, nil
}

func (g *Governor) markExecuted(id uint64) (Action, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeClock(); err != nil {
		return nil, err
	}
	p, err := g.proposal(id)
	if err != nil {
		return nil, err
	}
	if state := g.state(&p); state != Succeeded {
		return nil, errors.Wrapf(ErrNotSucceeded, "proposal %d is %s", id, state)
	}
	if p.Executed {
		return nil, errors.Wrapf(ErrAlreadyExecuted, "proposal %d", id)
	}
	action, err := g.resolver.Resolve(p.Action)
	if err != nil {
		return nil, &executionError{id: id, cause: err}
	}

	p.Executed = true
	ws := &writeSet{}
	ws.putProposal(p)
	if err := g.store.commit(ws); err != nil {
		return nil, err
	}
	g.logger.WithFields(logrus.Fields{"id": id, "action": p.ActionHash}).Debug("proposal marked executed")
	return action, nil
}

func (g *Governor) rollbackExecuted(id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.proposal(id)
	if err != nil {
		return err
	}
	p.Executed = false
	ws := &writeSet{}
	ws.putProposal(p)
	return g.store.commit(ws)
}
