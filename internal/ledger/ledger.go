// Package ledger handles user-initiated transaction writes: ad-hoc entries,
// transfers, and deletions. Entries dated after the caller's "today" stay
// pending and are picked up by settlement; entries dated today or earlier
// apply to balances immediately.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/store"
	"github.com/dvloznov/budget-tracker/internal/transfer"
)

// Service provides transaction-level writes on top of the store.
type Service struct {
	store store.Store
	log   zerolog.Logger
}

// NewService creates a ledger service over the given store.
func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// CreateInput describes a user-entered transaction.
type CreateInput struct {
	OwnerID     string
	Description string
	Amount      decimal.Decimal // positive magnitude
	Kind        domain.Kind
	AccountID   string
	CategoryID  string
	Date        civil.Date
	// Today is the caller's effective date; dates after it are pending.
	Today civil.Date
}

// CreateTransaction records a single in/out transaction. When the date is not
// in the future the balance delta is applied immediately and the row is
// stored applied; otherwise it stays pending for settlement to pick up.
func (s *Service) CreateTransaction(ctx context.Context, in CreateInput) (*domain.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("CreateTransaction: amount must be positive, got %s", in.Amount)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("CreateTransaction: unknown kind %q", in.Kind)
	}

	// Load the account before persisting anything, so a bad AccountID can
	// never leave behind an applied row with no balance delta.
	account, err := s.store.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: loading account: %w", err)
	}

	isFuture := in.Date.After(in.Today)
	tx := &domain.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     in.OwnerID,
		Description: in.Description,
		Amount:      in.Amount,
		Kind:        in.Kind,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		IsApplied:   !isFuture,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: persisting: %w", err)
	}

	if !isFuture {
		newBalance := account.Balance.Add(created.SignedAmount())
		if err := s.store.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
			return nil, fmt.Errorf("CreateTransaction: applying balance: %w", err)
		}
	}

	s.log.Info().
		Str("transaction_id", created.ID).
		Str("account_id", in.AccountID).
		Bool("pending", isFuture).
		Msg("Transaction created")

	return created, nil
}

// TransferInput describes a user-entered transfer between two accounts.
type TransferInput struct {
	OwnerID       string
	SourceID      string
	DestinationID string
	Amount        decimal.Decimal
	Description   string
	CategoryID    string
	Date          civil.Date
	Today         civil.Date
}

// CreateTransfer records a linked transaction pair. The pair is persisted
// through the store's transactional write, so both legs land or neither does.
// When not future-dated, both balance deltas are applied as a unit.
func (s *Service) CreateTransfer(ctx context.Context, in TransferInput) (*domain.Transaction, *domain.Transaction, error) {
	source, err := s.store.GetAccount(ctx, in.SourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: loading source account: %w", err)
	}
	dest, err := s.store.GetAccount(ctx, in.DestinationID)
	if err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: loading destination account: %w", err)
	}

	isFuture := in.Date.After(in.Today)
	out, inTx, err := transfer.BuildPair(transfer.PairParams{
		OwnerID:       in.OwnerID,
		SourceID:      source.ID,
		SourceName:    source.Name,
		DestinationID: dest.ID,
		DestName:      dest.Name,
		Amount:        in.Amount,
		Date:          in.Date,
		Description:   in.Description,
		CategoryID:    in.CategoryID,
		Applied:       !isFuture,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	out, inTx, err = s.store.CreateLinkedTransferPair(ctx, out, inTx)
	if err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: persisting pair: %w", err)
	}

	if !isFuture {
		if err := s.store.UpdateAccountBalance(ctx, source.ID, source.Balance.Sub(in.Amount)); err != nil {
			return nil, nil, fmt.Errorf("CreateTransfer: debiting source: %w", err)
		}
		if err := s.store.UpdateAccountBalance(ctx, dest.ID, dest.Balance.Add(in.Amount)); err != nil {
			return nil, nil, fmt.Errorf("CreateTransfer: crediting destination: %w", err)
		}
	}

	s.log.Info().
		Str("out_id", out.ID).
		Str("in_id", inTx.ID).
		Str("source_id", source.ID).
		Str("destination_id", dest.ID).
		Bool("pending", isFuture).
		Msg("Transfer created")

	return out, inTx, nil
}

// DeleteTransaction removes a transaction, reversing its balance delta if it
// was applied. Deleting one leg of a transfer removes the other leg too, each
// with its own reversal, so the mutual-link invariant never dangles.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: loading transaction: %w", err)
	}

	legs := []*domain.Transaction{tx}
	if tx.IsTransferLeg() {
		other, err := s.store.GetTransaction(ctx, tx.LinkedTransactionID)
		if err != nil {
			return fmt.Errorf("DeleteTransaction: loading linked leg: %w", err)
		}
		legs = append(legs, other)
	}

	for _, leg := range legs {
		if leg.IsApplied {
			if err := s.applyDelta(ctx, leg.AccountID, leg.SignedAmount().Neg()); err != nil {
				return fmt.Errorf("DeleteTransaction: reversing %s: %w", leg.ID, err)
			}
		}
		if err := s.store.DeleteTransaction(ctx, leg.ID); err != nil {
			return fmt.Errorf("DeleteTransaction: deleting %s: %w", leg.ID, err)
		}
	}

	s.log.Info().Str("transaction_id", id).Int("legs", len(legs)).Msg("Transaction deleted")
	return nil
}

func (s *Service) applyDelta(ctx context.Context, accountID string, delta decimal.Decimal) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return s.store.UpdateAccountBalance(ctx, accountID, account.Balance.Add(delta))
}
