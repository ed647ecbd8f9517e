package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kode4food/timelock"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Backend     string // "bolt" | "redis" | "postgres"
	Path        string
	RedisAddr   string
	PostgresURL string
	Book        string
	Caller      string
	Now         int64 // unix seconds, 0 = wall clock
	Format      string
	Verbose     bool
}

var (
	// ValidFormats defines the allowed output formats.
	ValidFormats = []string{"text", "json"}

	// ValidBackends defines the storage backends a command can open.
	ValidBackends = []string{"bolt", "redis", "postgres"}
)

// NewRootCommand creates the root command for the timelock CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "timelock",
		Short: "Time-locked escrow between participants",
		Long: `Lock balances into funds that a payee may claim inside an unlock
and expire window, and that the payer may reclaim once the window closes.

Every command acts on one book as the participant named by --caller.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Backend, "backend", envOr("TIMELOCK_BACKEND", "bolt"), "storage backend (bolt|redis|postgres)")
	flags.StringVar(&opts.Path, "path", envOr("TIMELOCK_PATH", timelock.DefaultBoltPath), "bolt database file")
	flags.StringVar(&opts.RedisAddr, "redis-addr", envOr("TIMELOCK_REDIS_ADDR", timelock.DefaultRedisEndpoint), "redis address")
	flags.StringVar(&opts.PostgresURL, "postgres-url", envOr("TIMELOCK_POSTGRES_URL", timelock.DefaultPostgresURL), "postgres connection URL")
	flags.StringVar(&opts.Book, "book", envOr("TIMELOCK_BOOK", timelock.DefaultBook), "book to operate on")
	flags.StringVar(&opts.Caller, "caller", os.Getenv("TIMELOCK_CALLER"), "participant the command acts as")
	flags.Int64Var(&opts.Now, "now", envInt("TIMELOCK_NOW"), "current time in unix seconds (defaults to the wall clock)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewBorrowCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewFundsCommand(opts))
	cmd.AddCommand(NewClaimableCommand(opts))
	cmd.AddCommand(NewReclaimableCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewSupplyCommand(opts))

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string) int64 {
	n, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return n
}
