package cli

import (
	"github.com/spf13/cobra"
)

// NewBorrowCommand creates the borrow command.
func NewBorrowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow",
		Short: "Credit the caller with the faucet amount",
		Long: `Credit the caller with the faucet amount.

Each call issues fresh value, so repeated calls keep adding to the balance.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				caller, err := s.caller(rootOpts)
				if err != nil {
					return err
				}
				bal, err := s.engine.Borrow(cmd.Context(), caller)
				if err != nil {
					return s.formatter.Reject(err)
				}
				return s.formatter.Success(BalanceView{
					Participant: caller,
					Balance:     bal,
				})
			})
		},
	}
}
