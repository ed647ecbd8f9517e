package timelock

import (
	"errors"
	"fmt"
)

// Every rejected operation returns one of these, usually wrapped with the
// fund or participant it concerns. Match with errors.Is
var (
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnlockTimeNotFuture     = errors.New("unlock time must be in the future")
	ErrExpireBeforeUnlock      = errors.New("expire time must be after unlock time")
	ErrFundNotFound            = errors.New("fund not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrAlreadyClaimed          = errors.New("fund already claimed")
	ErrTooEarlyForPayeeClaim   = errors.New("fund is not yet unlocked")
	ErrTooEarlyForPayerReclaim = errors.New("fund has not yet expired")
	ErrInvalidParticipant      = errors.New("participant identity is required")

	// ErrClaimWindowClosed is returned to a payee after the fund's expire
	// time. Only the payer may act from then on, so it also matches
	// ErrUnauthorized
	ErrClaimWindowClosed = fmt.Errorf("%w: claim window closed", ErrUnauthorized)
)

var rejections = []error{
	ErrInvalidAmount,
	ErrInsufficientBalance,
	ErrUnlockTimeNotFuture,
	ErrExpireBeforeUnlock,
	ErrFundNotFound,
	ErrUnauthorized,
	ErrAlreadyClaimed,
	ErrTooEarlyForPayeeClaim,
	ErrTooEarlyForPayerReclaim,
	ErrInvalidParticipant,
}

// IsRejection reports whether err is the escrow refusing an operation, as
// opposed to a storage or transport failure
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
