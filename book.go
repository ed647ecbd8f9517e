package timelock

import "fmt"

type (
	// Book is the whole state of one escrow: the Ledger of spendable
	// balances, the Registry of Funds, and the total value ever issued
	Book struct {
		Ledger   Ledger    `json:"ledger"`
		Registry *Registry `json:"registry"`
		Issued   Amount    `json:"issued"`
	}

	// BorrowedData records a faucet credit
	BorrowedData struct {
		Participant Participant `json:"participant"`
		Amount      Amount      `json:"amount"`
	}

	// FundLockedData records a debit from the payer and the Fund it created
	FundLockedData struct {
		ID         FundID      `json:"id"`
		Payer      Participant `json:"payer"`
		Payee      Participant `json:"payee"`
		UnlockTime UnixTime    `json:"unlock_time"`
		ExpireTime UnixTime    `json:"expire_time"`
		Amount     Amount      `json:"amount"`
	}

	// FundSettledData records which side of a Fund was credited
	FundSettledData struct {
		ID       FundID      `json:"id"`
		Claimant Participant `json:"claimant"`
		Role     Role        `json:"role"`
	}

	// Supply breaks down where a Book's issued value currently sits. Issued
	// always equals Held plus Outstanding
	Supply struct {
		Issued      Amount `json:"issued"`
		Held        Amount `json:"held"`
		Outstanding Amount `json:"outstanding"`
	}
)

const (
	EventBorrowed    EventType = "escrow.borrowed"
	EventFundLocked  EventType = "escrow.fund_locked"
	EventFundSettled EventType = "escrow.fund_settled"
)

var bookAppliers = Appliers{
	EventBorrowed:    MakeApplier(applyBorrowed),
	EventFundLocked:  MakeApplier(applyFundLocked),
	EventFundSettled: MakeApplier(applyFundSettled),
}

// NewBook returns an empty Book
func NewBook() *Book {
	return &Book{
		Ledger:   Ledger{},
		Registry: NewRegistry(),
	}
}

// Supply reports the Book's issued value and where it is held
func (b *Book) Supply() Supply {
	return Supply{
		Issued:      b.Issued,
		Held:        b.Ledger.Total(),
		Outstanding: b.Registry.Outstanding(),
	}
}

// Balanced reports whether no value has been created or destroyed
func (s Supply) Balanced() bool {
	return s.Issued == s.Held+s.Outstanding
}

func (b *Book) borrow(data BorrowedData) *Book {
	return &Book{
		Ledger:   b.Ledger.Credit(data.Participant, data.Amount),
		Registry: b.Registry,
		Issued:   b.Issued + data.Amount,
	}
}

func (b *Book) lock(data FundLockedData) (*Book, error) {
	if data.ID != b.Registry.NextID {
		return b, fmt.Errorf("fund %d locked out of order, next is %d",
			data.ID, b.Registry.NextID,
		)
	}
	ledger, err := b.Ledger.Debit(data.Payer, data.Amount)
	if err != nil {
		return b, err
	}
	reg, _ := b.Registry.Create(
		data.Payer, data.Payee, data.UnlockTime, data.ExpireTime, data.Amount,
	)
	return &Book{
		Ledger:   ledger,
		Registry: reg,
		Issued:   b.Issued,
	}, nil
}

func (b *Book) settle(data FundSettledData) (*Book, error) {
	f, err := b.Registry.Get(data.ID)
	if err != nil {
		return b, err
	}
	reg, err := b.Registry.Settle(data.ID, data.Role)
	if err != nil {
		return b, err
	}
	return &Book{
		Ledger:   b.Ledger.Credit(f.Recipient(data.Role), f.Amount),
		Registry: reg,
		Issued:   b.Issued,
	}, nil
}

// normalize repairs zero values left behind by decoding a sparse snapshot
func (b *Book) normalize() *Book {
	if b.Ledger == nil {
		b.Ledger = Ledger{}
	}
	if b.Registry == nil {
		b.Registry = NewRegistry()
	}
	if b.Registry.Funds == nil {
		b.Registry.Funds = []Fund{}
	}
	if b.Registry.NextID < FirstFundID {
		b.Registry.NextID = FirstFundID + FundID(len(b.Registry.Funds))
	}
	return b
}

func applyBorrowed(b *Book, _ *Event, data BorrowedData) *Book {
	return b.borrow(data)
}

// Commands validate before raising, so a committed lock or settle that no
// longer applies can only come from a corrupt log. Such events are skipped
func applyFundLocked(b *Book, _ *Event, data FundLockedData) *Book {
	res, _ := b.lock(data)
	return res
}

func applyFundSettled(b *Book, _ *Event, data FundSettledData) *Book {
	res, _ := b.settle(data)
	return res
}
