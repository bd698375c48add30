package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/axiomesh/governor/core"
)

var proposalCMD = &cli.Command{
	Name:  "proposal",
	Usage: "The proposal commands",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a proposal with an action to run if it succeeds",
			Flags: []cli.Flag{fromFlag, blockFlag,
				&cli.StringFlag{Name: "kind", Usage: "Action kind (noop, script)", Value: core.NoopActionKind},
				&cli.StringFlag{Name: "target", Usage: "Action target, the script name for script actions"},
				&cli.StringFlag{Name: "payload", Usage: "Action payload, the script arguments for script actions"},
				&cli.StringFlag{Name: "desc", Usage: "Proposal description"},
			},
			Action: withSession(createProposal),
		},
		{
			Name:   "state",
			Usage:  "Show a proposal and its current state",
			Flags:  []cli.Flag{proposalIDFlag, blockFlag},
			Action: withSession(showProposal),
		},
		{
			Name:  "cancel",
			Usage: "Cancel a pending or active proposal, allowed to the proposer and the administrator",
			Flags: []cli.Flag{fromFlag, proposalIDFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				from, err := parseAddress(ctx, fromFlag.Name)
				if err != nil {
					return err
				}
				id := ctx.Uint64(proposalIDFlag.Name)
				if err := s.gov.CancelProposal(from, id); err != nil {
					return err
				}
				fmt.Printf("proposal %d canceled\n", id)
				return nil
			}),
		},
		{
			Name:  "execute",
			Usage: "Execute the action of a succeeded proposal",
			Flags: []cli.Flag{proposalIDFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				id := ctx.Uint64(proposalIDFlag.Name)
				result, err := s.gov.ExecuteProposal(ctx.Context, id)
				if err != nil {
					return err
				}
				fmt.Printf("proposal %d executed\n", id)
				if len(result) > 0 {
					fmt.Printf("%s\n", result)
				}
				return nil
			}),
		},
		{
			Name:   "list",
			Usage:  "List all proposals",
			Flags:  []cli.Flag{blockFlag},
			Action: withSession(listProposals),
		},
		{
			Name:  "receipt",
			Usage: "Show the vote of an agent on a proposal",
			Flags: []cli.Flag{proposalIDFlag, agentFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				voter, err := parseAddress(ctx, agentFlag.Name)
				if err != nil {
					return err
				}
				id := ctx.Uint64(proposalIDFlag.Name)
				r, ok, err := s.gov.Receipt(id, voter)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Printf("agent %s has not voted on proposal %d\n", voter, id)
					return nil
				}
				fmt.Printf("agent %s voted %s with weight %d at block %d\n", voter, r.Choice, r.Weight, r.CastAtBlock)
				return nil
			}),
		},
	},
}

var voteCMD = &cli.Command{
	Name:  "vote",
	Usage: "Cast a vote on an active proposal",
	Flags: []cli.Flag{fromFlag, proposalIDFlag, blockFlag,
		&cli.StringFlag{Name: "choice", Usage: "for, against or abstain", Required: true},
	},
	Action: withSession(func(ctx *cli.Context, s *session) error {
		from, err := parseAddress(ctx, fromFlag.Name)
		if err != nil {
			return err
		}
		choice, ok := core.ParseVoteType(ctx.String("choice"))
		if !ok {
			return fmt.Errorf("--choice: unknown choice %q", ctx.String("choice"))
		}
		id := ctx.Uint64(proposalIDFlag.Name)
		if err := s.gov.CastVote(from, id, choice); err != nil {
			return err
		}
		fmt.Printf("agent %s voted %s on proposal %d\n", from, choice, id)
		return nil
	}),
}

func createProposal(ctx *cli.Context, s *session) error {
	from, err := parseAddress(ctx, fromFlag.Name)
	if err != nil {
		return err
	}
	action := core.ActionDescriptor{
		Kind:   ctx.String("kind"),
		Target: ctx.String("target"),
	}
	if payload := ctx.String("payload"); payload != "" {
		action.Payload = []byte(payload)
	}

	id, err := s.gov.CreateProposal(from, action, ctx.String("desc"))
	if err != nil {
		return err
	}
	p, err := s.gov.Proposal(id)
	if err != nil {
		return err
	}
	fmt.Printf("proposal %d created, voting from block %d to %d, action hash %s\n", id, p.StartBlock, p.EndBlock, p.ActionHash)
	return nil
}

func showProposal(ctx *cli.Context, s *session) error {
	id := ctx.Uint64(proposalIDFlag.Name)
	p, err := s.gov.Proposal(id)
	if err != nil {
		return err
	}
	state, err := s.gov.State(id)
	if err != nil {
		return err
	}
	reached, err := s.gov.HasReachedQuorum(id)
	if err != nil {
		return err
	}

	fmt.Printf("Proposal:    %d\n", p.ID)
	fmt.Printf("Proposer:    %s\n", p.Proposer)
	fmt.Printf("Description: %s\n", p.Description)
	fmt.Printf("Action:      %s %s %s (%s)\n", p.Action.Kind, p.Action.Target, p.Action.Payload, p.ActionHash)
	fmt.Printf("Voting:      blocks %d-%d, now %d\n", p.StartBlock, p.EndBlock, s.clock.Now())
	fmt.Printf("Votes:       for %d, against %d, abstain %d\n", p.ForVotes, p.AgainstVotes, p.AbstainVotes)
	fmt.Printf("Quorum:      reached %t\n", reached)
	fmt.Printf("State:       %s\n", state)
	return nil
}

func listProposals(ctx *cli.Context, s *session) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Proposer", "State", "For", "Against", "Abstain", "Start", "End", "Action"})

	count := s.gov.ProposalCount()
	for id := uint64(1); id <= count; id++ {
		p, err := s.gov.Proposal(id)
		if err != nil {
			return err
		}
		state, err := s.gov.State(id)
		if err != nil {
			return err
		}
		table.Append([]string{
			strconv.FormatUint(p.ID, 10),
			p.Proposer.Hex(),
			state.String(),
			strconv.FormatUint(p.ForVotes, 10),
			strconv.FormatUint(p.AgainstVotes, 10),
			strconv.FormatUint(p.AbstainVotes, 10),
			strconv.FormatUint(p.StartBlock, 10),
			strconv.FormatUint(p.EndBlock, 10),
			p.Action.Kind + ":" + p.Action.Target,
		})
	}
	table.Render()
	return nil
}
