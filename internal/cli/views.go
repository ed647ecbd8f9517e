package cli

import (
	"fmt"
	"strings"

	"github.com/kode4food/timelock"
)

type (
	// FundView is how a Fund is reported, including its state at the time
	// the command ran
	FundView struct {
		ID         timelock.FundID      `json:"id"`
		Payer      timelock.Participant `json:"payer"`
		Payee      timelock.Participant `json:"payee"`
		UnlockTime timelock.UnixTime    `json:"unlock_time"`
		ExpireTime timelock.UnixTime    `json:"expire_time"`
		Amount     timelock.Amount      `json:"amount"`
		Claimed    bool                 `json:"claimed"`
		State      timelock.FundState   `json:"state"`
	}

	// FundList reports a set of Funds in creation order
	FundList []FundView

	// BalanceView reports a participant's spendable balance
	BalanceView struct {
		Participant timelock.Participant `json:"participant"`
		Balance     timelock.Amount      `json:"balance"`
	}

	// SupplyView reports where a book's issued value sits
	SupplyView struct {
		Book string `json:"book"`
		timelock.Supply
	}
)

func newFundView(f *timelock.Fund, now timelock.UnixTime) FundView {
	return FundView{
		ID:         f.ID,
		Payer:      f.Payer,
		Payee:      f.Payee,
		UnlockTime: f.UnlockTime,
		ExpireTime: f.ExpireTime,
		Amount:     f.Amount,
		Claimed:    f.Claimed,
		State:      f.State(now),
	}
}

func newFundList(funds []*timelock.Fund, now timelock.UnixTime) FundList {
	res := make(FundList, len(funds))
	for i, f := range funds {
		res[i] = newFundView(f, now)
	}
	return res
}

func (v FundView) String() string {
	return fmt.Sprintf("#%d %s -> %s amount=%d unlock=%s expire=%s state=%s",
		v.ID, v.Payer, v.Payee, v.Amount, v.UnlockTime, v.ExpireTime, v.State,
	)
}

func (l FundList) String() string {
	if len(l) == 0 {
		return "no funds"
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

func (v BalanceView) String() string {
	return fmt.Sprintf("%s: %d", v.Participant, v.Balance)
}

func (v SupplyView) String() string {
	return fmt.Sprintf("%s: issued=%d held=%d outstanding=%d",
		v.Book, v.Issued, v.Held, v.Outstanding,
	)
}
