package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kode4food/timelock"
)

type fundQuery func(
	*timelock.Engine, context.Context, timelock.Participant,
) ([]*timelock.Fund, error)

// NewFundsCommand creates the funds command.
func NewFundsCommand(rootOpts *RootOptions) *cobra.Command {
	return newFundQueryCommand(rootOpts, "funds",
		"List every fund the caller pays or receives",
		(*timelock.Engine).GetMyRelatedFunds,
	)
}

// NewClaimableCommand creates the claimable command.
func NewClaimableCommand(rootOpts *RootOptions) *cobra.Command {
	return newFundQueryCommand(rootOpts, "claimable",
		"List the funds the caller may claim as payee now",
		(*timelock.Engine).GetMyClaimableFunds,
	)
}

// NewReclaimableCommand creates the reclaimable command.
func NewReclaimableCommand(rootOpts *RootOptions) *cobra.Command {
	return newFundQueryCommand(rootOpts, "reclaimable",
		"List the expired funds the caller may reclaim as payer now",
		(*timelock.Engine).GetMyReclaimableFunds,
	)
}

func newFundQueryCommand(
	rootOpts *RootOptions, use, short string, query fundQuery,
) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				caller, err := s.caller(rootOpts)
				if err != nil {
					return err
				}
				funds, err := query(s.engine, cmd.Context(), caller)
				if err != nil {
					return s.formatter.Reject(err)
				}
				return s.formatter.Success(newFundList(funds, s.engine.Now()))
			})
		},
	}
}
