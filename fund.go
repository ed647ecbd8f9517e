package timelock

import "fmt"

type (
	// Fund is a single time-gated transfer of Amount from Payer to Payee.
	// Everything but Claimed and SettledTo is fixed at creation
	Fund struct {
		ID         FundID      `json:"id"`
		Payer      Participant `json:"payer"`
		Payee      Participant `json:"payee"`
		UnlockTime UnixTime    `json:"unlock_time"`
		ExpireTime UnixTime    `json:"expire_time"`
		Amount     Amount      `json:"amount"`
		Claimed    bool        `json:"claimed"`
		SettledTo  Role        `json:"settled_to,omitempty"`
	}

	// Role is the side of a Fund a settlement credits
	Role string

	// FundState is the lifecycle position of a Fund at a given time
	FundState string
)

const (
	RolePayee Role = "payee"
	RolePayer Role = "payer"
)

const (
	// StateLocked means nobody may withdraw yet
	StateLocked FundState = "locked"

	// StateClaimable means only the payee may withdraw
	StateClaimable FundState = "claimable"

	// StateExpired means only the payer may withdraw
	StateExpired FundState = "expired"

	StateSettledToPayee FundState = "settled_to_payee"
	StateSettledToPayer FundState = "settled_to_payer"
)

// State reports where the Fund sits in its lifecycle at now. The window
// partitions time as [creation, unlock) locked, [unlock, expire] claimable,
// and (expire, ∞) expired
func (f *Fund) State(now UnixTime) FundState {
	switch {
	case f.Claimed && f.SettledTo == RolePayer:
		return StateSettledToPayer
	case f.Claimed:
		return StateSettledToPayee
	case now < f.UnlockTime:
		return StateLocked
	case now <= f.ExpireTime:
		return StateClaimable
	default:
		return StateExpired
	}
}

// IsParty reports whether p is the Fund's payer or payee
func (f *Fund) IsParty(p Participant) bool {
	return p == f.Payer || p == f.Payee
}

// ClaimableBy reports whether p may withdraw the Fund as its payee at now
func (f *Fund) ClaimableBy(p Participant, now UnixTime) bool {
	return p == f.Payee && f.State(now) == StateClaimable
}

// ReclaimableBy reports whether p may withdraw the Fund as its payer at now
func (f *Fund) ReclaimableBy(p Participant, now UnixTime) bool {
	return p == f.Payer && f.State(now) == StateExpired
}

// SettlementRole decides which side a withdrawal by caller at now would
// credit, or why it must be rejected. A participant who is both payer and
// payee claims as payee while the window is open and reclaims as payer after
// expiry.
func (f *Fund) SettlementRole(caller Participant, now UnixTime) (Role, error) {
	if !f.IsParty(caller) {
		return "", fmt.Errorf("%w: %s is not a party to fund %d",
			ErrUnauthorized, caller, f.ID,
		)
	}
	if f.Claimed {
		return "", fmt.Errorf("%w: fund %d", ErrAlreadyClaimed, f.ID)
	}

	if caller == f.Payee && (now <= f.ExpireTime || caller != f.Payer) {
		if now < f.UnlockTime {
			return "", fmt.Errorf("%w: fund %d unlocks at %s",
				ErrTooEarlyForPayeeClaim, f.ID, f.UnlockTime,
			)
		}
		if now > f.ExpireTime {
			return "", fmt.Errorf("%w: fund %d expired at %s",
				ErrClaimWindowClosed, f.ID, f.ExpireTime,
			)
		}
		return RolePayee, nil
	}

	if now <= f.ExpireTime {
		return "", fmt.Errorf("%w: fund %d expires at %s",
			ErrTooEarlyForPayerReclaim, f.ID, f.ExpireTime,
		)
	}
	return RolePayer, nil
}

// Recipient returns the participant credited by a settlement in role
func (f *Fund) Recipient(role Role) Participant {
	if role == RolePayer {
		return f.Payer
	}
	return f.Payee
}
