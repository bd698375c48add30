package main

import (
	"fmt"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/axiomesh/governor/core"
	"github.com/axiomesh/governor/repo"
)

var (
	fromFlag = &cli.StringFlag{
		Name:     "from",
		Usage:    "Caller principal address, already authenticated by the caller's transport",
		Required: true,
	}
	blockFlag = &cli.Uint64Flag{
		Name:  "block",
		Usage: "Use this block number instead of reading the chain head",
	}
	proposalIDFlag = &cli.Uint64Flag{
		Name:     "id",
		Usage:    "Proposal id",
		Required: true,
	}
	agentFlag = &cli.StringFlag{
		Name:     "agent",
		Usage:    "Agent address",
		Required: true,
	}
)

func newActionRegistry(r *repo.Repo) *core.ActionRegistry {
	actions := core.NewActionRegistry()
	actions.Register(core.ScriptActionKind, core.ScriptActionFactory(r.ScriptsPath()))
	return actions
}

type session struct {
	repo  *repo.Repo
	gov   *core.Governor
	db    storage.Storage
	clock core.Clock
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		fmt.Println("close storage:", err)
	}
}

// openSession builds a governor for a single command. Its clock is the chain head read
// once, or --block when given. A block before the last committed one is refused.
func openSession(ctx *cli.Context) (*session, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	r, err := repo.Load(p)
	if err != nil {
		return nil, err
	}

	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	block := ctx.Uint64(blockFlag.Name)
	if !ctx.IsSet(blockFlag.Name) {
		client, err := ethclient.DialContext(ctx.Context, r.Config.DialUrl)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		if block, err = core.FetchHead(ctx.Context, client, logger); err != nil {
			return nil, errors.Wrap(err, "read chain head")
		}
	}
	clock := core.NewManualClock(block)

	cfg, err := r.Config.GovernorConfig()
	if err != nil {
		return nil, err
	}
	gov, db, err := core.OpenGovernor(r.StoragePath(), cfg, clock, newActionRegistry(r), logger)
	if err != nil {
		return nil, err
	}

	return &session{repo: r, gov: gov, db: db, clock: clock}, nil
}

func parseAddress(ctx *cli.Context, name string) (common.Address, error) {
	s := ctx.String(name)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("--%s: %q is not a hex address", name, s)
	}
	return common.HexToAddress(s), nil
}

// withSession runs fn against a governor opened for this command.
func withSession(fn func(ctx *cli.Context, s *session) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s)
	}
}
