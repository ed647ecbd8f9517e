package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kode4food/timelock"
)

// NewWithdrawCommand creates the withdraw command.
func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <fund-id>",
		Short: "Settle a fund in favor of the caller",
		Long: `Settle a fund in favor of the caller.

The payee may claim from the unlock time through the expire time. The payer
may reclaim only after the expire time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				caller, err := s.caller(rootOpts)
				if err != nil {
					return err
				}
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return argumentError(s.formatter, "fund id", err)
				}

				f, err := s.engine.Withdraw(cmd.Context(), caller, timelock.FundID(id))
				if err != nil {
					return s.formatter.Reject(err)
				}
				return s.formatter.Success(newFundView(f, s.engine.Now()))
			})
		},
	}
}
