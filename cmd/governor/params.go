package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

var valueFlag = &cli.Uint64Flag{
	Name:     "value",
	Usage:    "New parameter value",
	Required: true,
}

var paramsCMD = &cli.Command{
	Name:  "params",
	Usage: "The governance parameter commands",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "Show the governance parameters in effect",
			Flags: []cli.Flag{blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				p := s.gov.Params()
				fmt.Printf("quorum basis points: %d (%s)\n", p.QuorumBasisPoints, s.gov.QuorumPolicy())
				fmt.Printf("voting delay:        %d\n", p.VotingDelay)
				fmt.Printf("voting period:       %d\n", p.VotingPeriod)
				fmt.Printf("quorum votes:        %d\n", s.gov.Quorum())
				return nil
			}),
		},
		{
			Name:  "quorum",
			Usage: "Update the quorum in basis points of the total voting power",
			Flags: []cli.Flag{fromFlag, valueFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return updateParam(ctx, "quorum", s.gov.UpdateQuorum)
			}),
		},
		{
			Name:  "delay",
			Usage: "Update the voting delay in blocks",
			Flags: []cli.Flag{fromFlag, valueFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return updateParam(ctx, "voting delay", s.gov.UpdateVotingDelay)
			}),
		},
		{
			Name:  "period",
			Usage: "Update the voting period in blocks",
			Flags: []cli.Flag{fromFlag, valueFlag, blockFlag},
			Action: withSession(func(ctx *cli.Context, s *session) error {
				return updateParam(ctx, "voting period", s.gov.UpdateVotingPeriod)
			}),
		},
	},
}

func updateParam(ctx *cli.Context, name string, update func(caller common.Address, value uint64) error) error {
	from, err := parseAddress(ctx, fromFlag.Name)
	if err != nil {
		return err
	}
	value := ctx.Uint64(valueFlag.Name)
	if err := update(from, value); err != nil {
		return err
	}
	fmt.Printf("%s updated to %d\n", name, value)
	return nil
}
