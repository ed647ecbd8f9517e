package cli

import (
	"github.com/spf13/cobra"
)

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balance",
		Short:         "Show the caller's spendable balance",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				caller, err := s.caller(rootOpts)
				if err != nil {
					return err
				}
				bal, err := s.engine.Balance(cmd.Context(), caller)
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

// NewSupplyCommand creates the supply command.
func NewSupplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supply",
		Short: "Show the book's issued, held, and outstanding value",
		Long: `Show the book's issued, held, and outstanding value.

Issued always equals held plus outstanding. Needs no --caller.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				supply, err := s.engine.Supply(cmd.Context())
				if err != nil {
					return s.formatter.Reject(err)
				}
				return s.formatter.Success(SupplyView{
					Book:   rootOpts.Book,
					Supply: supply,
				})
			})
		},
	}
}
