// Package transfer shapes and validates linked transaction pairs. Moving
// money between two accounts is always recorded as one out leg on the source
// and one in leg on the destination, each referencing the other. This package
// only builds the records; persisting them atomically and applying balance
// deltas is the caller's job.
package transfer

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// PairParams describes a transfer to materialize as a transaction pair.
type PairParams struct {
	OwnerID       string
	SourceID      string
	SourceName    string
	DestinationID string
	DestName      string
	Amount        decimal.Decimal // positive magnitude
	Date          civil.Date
	Description   string
	CategoryID    string
	// Applied marks both legs as already folded into balances. The caller is
	// then responsible for applying both deltas as a single unit.
	Applied bool
	// RecurringID records provenance when the pair comes from a recurring item.
	RecurringID string
}

// BuildPair returns the out leg on the source account and the in leg on the
// destination, mutually linked, with equal amounts and opposite kinds.
func BuildPair(p PairParams) (*domain.Transaction, *domain.Transaction, error) {
	if p.SourceID == p.DestinationID {
		return nil, nil, fmt.Errorf("BuildPair: source and destination are the same account %s", p.SourceID)
	}
	if !p.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("BuildPair: amount must be positive, got %s", p.Amount)
	}

	now := time.Now().UTC()
	outID := uuid.NewString()
	inID := uuid.NewString()

	out := &domain.Transaction{
		ID:                  outID,
		OwnerID:             p.OwnerID,
		Description:         fmt.Sprintf("%s → %s", p.Description, p.DestName),
		Amount:              p.Amount,
		Kind:                domain.KindOut,
		AccountID:           p.SourceID,
		CounterAccountID:    p.DestinationID,
		CategoryID:          p.CategoryID,
		Date:                p.Date,
		IsApplied:           p.Applied,
		RecurringID:         p.RecurringID,
		LinkedTransactionID: inID,
		CreatedAt:           now,
	}
	in := &domain.Transaction{
		ID:                  inID,
		OwnerID:             p.OwnerID,
		Description:         fmt.Sprintf("%s ← %s", p.Description, p.SourceName),
		Amount:              p.Amount,
		Kind:                domain.KindIn,
		AccountID:           p.DestinationID,
		CounterAccountID:    p.SourceID,
		CategoryID:          p.CategoryID,
		Date:                p.Date,
		IsApplied:           p.Applied,
		RecurringID:         p.RecurringID,
		LinkedTransactionID: outID,
		CreatedAt:           now,
	}

	if err := ValidateLink(out, in); err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// ValidateLink checks the mutual-link invariant on a transfer pair: both legs
// reference each other, amounts are equal, and kinds are opposite. Any
// violation is reported as ErrUnlinkedTransfer.
func ValidateLink(out, in *domain.Transaction) error {
	switch {
	case out.LinkedTransactionID != in.ID || in.LinkedTransactionID != out.ID:
		return fmt.Errorf("%w: legs %s and %s do not reference each other", domain.ErrUnlinkedTransfer, out.ID, in.ID)
	case !out.Amount.Equal(in.Amount):
		return fmt.Errorf("%w: amounts differ (%s vs %s)", domain.ErrUnlinkedTransfer, out.Amount, in.Amount)
	case out.Kind != domain.KindOut || in.Kind != domain.KindIn:
		return fmt.Errorf("%w: kinds must be out/in, got %s/%s", domain.ErrUnlinkedTransfer, out.Kind, in.Kind)
	case out.AccountID == in.AccountID:
		return fmt.Errorf("%w: both legs on account %s", domain.ErrUnlinkedTransfer, out.AccountID)
	}
	return nil
}
