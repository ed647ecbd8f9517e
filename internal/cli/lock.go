package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kode4food/timelock"
)

// LockOptions holds flags for the lock command.
type LockOptions struct {
	*RootOptions
	Payee  string
	Amount uint64
	Unlock string
	Expire string
}

// NewLockCommand creates the lock command.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock part of the caller's balance into a new fund",
		Long: `Lock part of the caller's balance into a new fund.

Times are unix seconds, or a duration relative to now prefixed with "+".

Example:
  timelock lock --caller alice --payee bob --amount 5 --unlock +1m --expire +3m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payee, "payee", "", "participant who may claim the fund")
	cmd.Flags().Uint64Var(&opts.Amount, "amount", 0, "amount to lock")
	cmd.Flags().StringVar(&opts.Unlock, "unlock", "", "time the payee may start claiming")
	cmd.Flags().StringVar(&opts.Expire, "expire", "", "last time the payee may claim")
	_ = cmd.MarkFlagRequired("payee")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("unlock")
	_ = cmd.MarkFlagRequired("expire")

	return cmd
}

func runLock(opts *LockOptions, cmd *cobra.Command) error {
	return withSession(opts.RootOptions, cmd, func(s *session) error {
		caller, err := s.caller(opts.RootOptions)
		if err != nil {
			return err
		}

		now := s.engine.Now()
		unlock, err := ParseTime(opts.Unlock, now)
		if err != nil {
			return argumentError(s.formatter, "--unlock", err)
		}
		expire, err := ParseTime(opts.Expire, now)
		if err != nil {
			return argumentError(s.formatter, "--expire", err)
		}
		s.formatter.VerboseLog("Locking %d to %s over [%s, %s]",
			opts.Amount, opts.Payee, unlock, expire,
		)

		f, err := s.engine.LockFund(cmd.Context(), caller,
			timelock.Participant(opts.Payee), unlock, expire,
			timelock.Amount(opts.Amount),
		)
		if err != nil {
			return s.formatter.Reject(err)
		}
		return s.formatter.Success(newFundView(f, now))
	})
}

// ParseTime reads unix seconds, or a "+duration" offset from now
func ParseTime(value string, now timelock.UnixTime) (timelock.UnixTime, error) {
	if rel, ok := strings.CutPrefix(value, "+"); ok {
		d, err := time.ParseDuration(rel)
		if err != nil {
			return 0, err
		}
		return now.Add(d), nil
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is neither unix seconds nor +duration", value)
	}
	return timelock.UnixTime(secs), nil
}

func argumentError(f *OutputFormatter, flag string, err error) error {
	msg := fmt.Sprintf("invalid %s: %v", flag, err)
	_ = f.Error(ErrCodeArguments, msg)
	return NewExitError(ExitCommandError, msg)
}
