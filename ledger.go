package timelock

import (
	"fmt"
	"maps"
	"slices"
)

// Ledger maps participants to their spendable balances. A Ledger is treated
// as immutable once it is part of a Book: Credit and Debit return a modified
// copy and leave the receiver untouched
type Ledger map[Participant]Amount

// Balance returns the participant's spendable balance, zero if unknown
func (l Ledger) Balance(p Participant) Amount {
	return l[p]
}

// Credit returns a Ledger with amt added to the participant's balance
func (l Ledger) Credit(p Participant, amt Amount) Ledger {
	res := l.clone()
	res[p] += amt
	return res
}

// Debit returns a Ledger with amt removed from the participant's balance, or
// ErrInsufficientBalance if the balance cannot cover it
func (l Ledger) Debit(p Participant, amt Amount) (Ledger, error) {
	bal := l[p]
	if amt > bal {
		return l, fmt.Errorf("%w: %s holds %d, needs %d",
			ErrInsufficientBalance, p, bal, amt,
		)
	}
	res := l.clone()
	res[p] = bal - amt
	return res, nil
}

// Total sums every balance in the Ledger
func (l Ledger) Total() Amount {
	var total Amount
	for _, bal := range l {
		total += bal
	}
	return total
}

// Participants returns every identity that has held a balance, sorted
func (l Ledger) Participants() []Participant {
	return slices.Sorted(maps.Keys(l))
}

func (l Ledger) clone() Ledger {
	if l == nil {
		return Ledger{}
	}
	return maps.Clone(l)
}
