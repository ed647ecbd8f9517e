package timelock

import (
	"fmt"
	"slices"
)

// Registry is the append-only record of a Book's Funds in creation order.
// Settled Funds are never removed. Like Ledger, a Registry that belongs to a
// Book is never modified in place
type Registry struct {
	Funds  []Fund `json:"funds"`
	NextID FundID `json:"next_id"`
}

// FirstFundID is the identifier given to a Book's first Fund
const FirstFundID FundID = 1

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		Funds:  []Fund{},
		NextID: FirstFundID,
	}
}

// Create returns a Registry holding a new unclaimed Fund under the next
// identifier, along with a copy of that Fund
func (r *Registry) Create(
	payer, payee Participant, unlock, expire UnixTime, amount Amount,
) (*Registry, *Fund) {
	f := Fund{
		ID:         r.NextID,
		Payer:      payer,
		Payee:      payee,
		UnlockTime: unlock,
		ExpireTime: expire,
		Amount:     amount,
	}
	res := &Registry{
		Funds:  append(slices.Clip(r.Funds), f),
		NextID: r.NextID + 1,
	}
	return res, &f
}

// Get returns a copy of the Fund with the given identifier
func (r *Registry) Get(id FundID) (*Fund, error) {
	idx, ok := r.index(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFundNotFound, id)
	}
	f := r.Funds[idx]
	return &f, nil
}

// Settle returns a Registry in which the Fund is marked claimed in favor of
// role. Settling a Fund twice fails with ErrAlreadyClaimed
func (r *Registry) Settle(id FundID, role Role) (*Registry, error) {
	idx, ok := r.index(id)
	if !ok {
		return r, fmt.Errorf("%w: %d", ErrFundNotFound, id)
	}
	if r.Funds[idx].Claimed {
		return r, fmt.Errorf("%w: fund %d", ErrAlreadyClaimed, id)
	}
	funds := slices.Clone(r.Funds)
	funds[idx].Claimed = true
	funds[idx].SettledTo = role
	return &Registry{Funds: funds, NextID: r.NextID}, nil
}

// ListByParticipant returns copies of every Fund where p is payer or payee,
// in creation order
func (r *Registry) ListByParticipant(p Participant) []*Fund {
	res := []*Fund{}
	for _, f := range r.Funds {
		if f.IsParty(p) {
			res = append(res, &f)
		}
	}
	return res
}

// Outstanding sums the amounts held by unsettled Funds
func (r *Registry) Outstanding() Amount {
	var total Amount
	for _, f := range r.Funds {
		if !f.Claimed {
			total += f.Amount
		}
	}
	return total
}

// index relies on identifiers being assigned densely from FirstFundID
func (r *Registry) index(id FundID) (int, bool) {
	if id < FirstFundID || id >= r.NextID {
		return 0, false
	}
	idx := int(id - FirstFundID)
	if idx >= len(r.Funds) {
		return 0, false
	}
	return idx, true
}
