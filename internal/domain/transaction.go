package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind says which way money moves. Transfers are always modeled as two
// transactions (one out, one in), never a third kind.
type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindIn || k == KindOut
}

// Transaction is a single dated movement of money on one account.
// Amount is always a positive magnitude; the sign is implied by Kind.
type Transaction struct {
	ID          string
	OwnerID     string
	Description string
	Amount      decimal.Decimal // positive magnitude
	Kind        Kind
	AccountID   string
	// CounterAccountID is the other account of a transfer, informational only.
	CounterAccountID string
	CategoryID       string
	Date             civil.Date
	// IsApplied tracks whether this transaction has been folded into the
	// account balance. Monotonic: once true it is never reset, except by an
	// explicit delete that also reverses the balance delta.
	IsApplied bool
	// RecurringID is set when the transaction was created by a recurring item.
	RecurringID string
	// LinkedTransactionID points at the other leg of a transfer pair. When set,
	// the referenced transaction must point back (see transfer.ValidateLink).
	LinkedTransactionID string
	CreatedAt           time.Time
}

// SignedAmount returns the balance delta this transaction carries:
// +Amount for in, -Amount for out.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindOut {
		return t.Amount.Neg()
	}
	return t.Amount
}

// IsTransferLeg reports whether this transaction is one half of a transfer pair.
func (t *Transaction) IsTransferLeg() bool {
	return t.LinkedTransactionID != ""
}
