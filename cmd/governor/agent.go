package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/axiomesh/governor/core"
)

var powerFlag = &cli.Uint64Flag{
	Name:     "power",
	Usage:    "Agent voting power",
	Required: true,
}

var agentCMD = &cli.Command{
	Name:  "agent",
	Usage: "The agent registry commands",
	Subcommands: []*cli.Command{
		{
			Name:  "register",
			Usage: "Register an agent with a voting power",
			Flags: []cli.Flag{fromFlag, agentFlag, powerFlag, blockFlag,
				&cli.StringFlag{Name: "metadata", Usage: "Free-form agent metadata"},
			},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return agentOp(ctx, func(from, agent common.Address) error {
					return s.gov.RegisterAgent(from, agent, ctx.Uint64(powerFlag.Name), ctx.String("metadata"))
				}, "registered")
			}),
		},
		{
			Name:  "verify",
			Usage: "Verify a registered agent so it can propose and vote",
			Flags: []cli.Flag{fromFlag, agentFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return agentOp(ctx, func(from, agent common.Address) error {
					return s.gov.VerifyAgent(from, agent)
				}, "verified")
			}),
		},
		{
			Name:  "deactivate",
			Usage: "Deactivate an agent, removing its power from the total",
			Flags: []cli.Flag{fromFlag, agentFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return agentOp(ctx, func(from, agent common.Address) error {
					return s.gov.DeactivateAgent(from, agent)
				}, "deactivated")
			}),
		},
		{
			Name:  "reactivate",
			Usage: "Reactivate an agent",
			Flags: []cli.Flag{fromFlag, agentFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return agentOp(ctx, func(from, agent common.Address) error {
					return s.gov.ReactivateAgent(from, agent)
				}, "reactivated")
			}),
		},
		{
			Name:  "power",
			Usage: "Update the voting power of an agent",
			Flags: []cli.Flag{fromFlag, agentFlag, powerFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return agentOp(ctx, func(from, agent common.Address) error {
					return s.gov.UpdateVotingPower(from, agent, ctx.Uint64(powerFlag.Name))
				}, "updated")
			}),
		},
		{
			Name:   "list",
			Usage:  "List all agents and check the total voting power",
			Flags:  []cli.Flag{blockFlag},
			Action: withSession(listAgents),
		},
	},
}

// agentOp parses --from and --agent and runs op with them.
func agentOp(ctx *cli.Context, op func(from, agent common.Address) error, done string) error {
	from, err := parseAddress(ctx, fromFlag.Name)
	if err != nil {
		return err
	}
	agent, err := parseAddress(ctx, agentFlag.Name)
	if err != nil {
		return err
	}
	if err := op(from, agent); err != nil {
		return err
	}
	fmt.Printf("agent %s %s\n", agent, done)
	return nil
}

func listAgents(ctx *cli.Context, s *session) error {
	agents, err := s.gov.Agents()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Agent", "Power", "Verified", "Active", "Registered At", "Metadata"})
	table.AppendBulk(lo.Map(agents, func(a core.Agent, _ int) []string {
		return []string{
			a.ID.Hex(),
			strconv.FormatUint(a.VotingPower, 10),
			strconv.FormatBool(a.Verified),
			strconv.FormatBool(a.Active),
			strconv.FormatUint(a.RegisteredAt, 10),
			a.Metadata,
		}
	}))
	table.Render()

	scanned, err := s.gov.RecomputeTotalVotingPower()
	if err != nil {
		return err
	}
	total := s.gov.TotalVotingPower()
	fmt.Printf("total voting power: %d, quorum: %d\n", total, s.gov.Quorum())
	if scanned != total {
		return fmt.Errorf("total voting power %d does not match scanned %d", total, scanned)
	}
	return nil
}
