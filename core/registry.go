package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

func (g *Governor) RegisterAgent(caller, id common.Address, power uint64, metadata string) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, OpRegisterAgent); err != nil {
			return Event{}, err
		}
		if id == (common.Address{}) {
			return Event{}, errors.Wrap(ErrInvalidArgument, "agent id is the zero address")
		}
		if power == 0 {
			return Event{}, errors.Wrap(ErrInvalidArgument, "voting power must be positive")
		}
		_, exists, err := g.store.Agent(id)
		if err != nil {
			return Event{}, err
		}
		if exists {
			return Event{}, errors.Wrapf(ErrAlreadyExists, "agent %s", id)
		}
		total, err := addPower(g.store.TotalVotingPower(), power)
		if err != nil {
			return Event{}, err
		}

		block := g.clock.Now()
		agent := Agent{
			ID:           id,
			Registered:   true,
			Active:       true,
			VotingPower:  power,
			Metadata:     metadata,
			RegisteredAt: block,
		}
		ws := &writeSet{}
		ws.putAgent(agent)
		ws.indexAgent(g.store.AgentCount(), id)
		ws.putTotalVotingPower(total)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithFields(logrus.Fields{"agent": id, "power": power}).Info("agent registered")
		return Event{Kind: AgentRegistered, Block: block, Agent: id, NewValue: power}, nil
	})
}

func (g *Governor) VerifyAgent(caller, id common.Address) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, OpVerifyAgent); err != nil {
			return Event{}, err
		}
		agent, err := g.agent(id)
		if err != nil {
			return Event{}, err
		}
		if agent.Verified {
			return Event{}, errors.Wrapf(ErrAlreadyVerified, "agent %s", id)
		}

		agent.Verified = true
		ws := &writeSet{}
		ws.putAgent(agent)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithField("agent", id).Info("agent verified")
		return Event{Kind: AgentVerified, Block: g.clock.Now(), Agent: id}, nil
	})
}

func (g *Governor) DeactivateAgent(caller, id common.Address) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, OpDeactivateAgent); err != nil {
			return Event{}, err
		}
		agent, err := g.agent(id)
		if err != nil {
			return Event{}, err
		}
		if !agent.Active {
			return Event{}, errors.Wrapf(ErrNotActive, "agent %s", id)
		}

		total := g.store.TotalVotingPower()
		if total < agent.VotingPower {
			return Event{}, errors.Errorf("total voting power %d below power %d of active agent %s", total, agent.VotingPower, id)
		}
		agent.Active = false
		ws := &writeSet{}
		ws.putAgent(agent)
		ws.putTotalVotingPower(total - agent.VotingPower)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithField("agent", id).Info("agent deactivated")
		return Event{Kind: AgentDeactivated, Block: g.clock.Now(), Agent: id, OldValue: agent.VotingPower}, nil
	})
}

func (g *Governor) ReactivateAgent(caller, id common.Address) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, OpReactivateAgent); err != nil {
			return Event{}, err
		}
		agent, err := g.agent(id)
		if err != nil {
			return Event{}, err
		}
		if agent.Active {
			return Event{}, errors.Wrapf(ErrAlreadyActive, "agent %s", id)
		}
		total, err := addPower(g.store.TotalVotingPower(), agent.VotingPower)
		if err != nil {
			return Event{}, err
		}

		agent.Active = true
		ws := &writeSet{}
		ws.putAgent(agent)
		ws.putTotalVotingPower(total)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithField("agent", id).Info("agent reactivated")
		return Event{Kind: AgentReactivated, Block: g.clock.Now(), Agent: id, NewValue: agent.VotingPower}, nil
	})
}

// UpdateVotingPower changes future vote weights only, receipts keep the weight
// they were cast with.
func (g *Governor) UpdateVotingPower(caller, id common.Address, power uint64) error {
	return g.apply(func() (Event, error) {
		if err := g.authz.Authorize(caller, OpUpdateVotingPower); err != nil {
			return Event{}, err
		}
		if power == 0 {
			return Event{}, errors.Wrap(ErrInvalidArgument, "voting power must be positive")
		}
		agent, err := g.agent(id)
		if err != nil {
			return Event{}, err
		}

		old := agent.VotingPower
		total := g.store.TotalVotingPower()
		if agent.counted() {
			if total < old {
				return Event{}, errors.Errorf("total voting power %d below power %d of active agent %s", total, old, id)
			}
			if total, err = addPower(total-old, power); err != nil {
				return Event{}, err
			}
		}

		agent.VotingPower = power
		ws := &writeSet{}
		ws.putAgent(agent)
		ws.putTotalVotingPower(total)
		if err := g.store.commit(ws); err != nil {
			return Event{}, err
		}

		g.logger.WithFields(logrus.Fields{"agent": id, "old": old, "new": power}).Info("voting power updated")
		return Event{Kind: VotingPowerUpdated, Block: g.clock.Now(), Agent: id, OldValue: old, NewValue: power}, nil
	})
}

// IsEligibleVoter reports whether id is registered, verified and active.
func (g *Governor) IsEligibleVoter(id common.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isEligible(id)
}

func (g *Governor) isEligible(id common.Address) bool {
	agent, ok, err := g.store.Agent(id)
	if err != nil {
		g.logger.Errorf("load agent %s: %s", id, err)
		return false
	}
	return ok && agent.Eligible()
}

func (g *Governor) Agent(id common.Address) (Agent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.agent(id)
}

func (g *Governor) agent(id common.Address) (Agent, error) {
	agent, ok, err := g.store.Agent(id)
	if err != nil {
		return Agent{}, err
	}
	if !ok {
		return Agent{}, errors.Wrapf(ErrNotFound, "agent %s", id)
	}
	return agent, nil
}

func (g *Governor) TotalVotingPower() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.TotalVotingPower()
}

// Agents lists every registered agent. It scans the whole registry.
func (g *Governor) Agents() ([]Agent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.agents()
}

func (g *Governor) agents() ([]Agent, error) {
	ids := g.store.AgentIDs()
	agents := make([]Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := g.agent(id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// RecomputeTotalVotingPower sums the power of registered, active agents by a full scan.
// It must always equal TotalVotingPower.
func (g *Governor) RecomputeTotalVotingPower() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	agents, err := g.agents()
	if err != nil {
		return 0, err
	}
	counted := lo.Filter(agents, func(a Agent, _ int) bool { return a.counted() })
	return lo.SumBy(counted, func(a Agent) uint64 { return a.VotingPower }), nil
}

func addPower(total, power uint64) (uint64, error) {
	sum := total + power
	if sum < total {
		return 0, errors.Wrapf(ErrInvalidArgument, "total voting power overflows adding %d", power)
	}
	return sum, nil
}
