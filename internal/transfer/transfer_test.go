package transfer

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

func params() PairParams {
	return PairParams{
		OwnerID:       "owner-1",
		SourceID:      "acct-1",
		SourceName:    "Current",
		DestinationID: "acct-2",
		DestName:      "Savings",
		Amount:        decimal.NewFromInt(50),
		Date:          civil.Date{Year: 2026, Month: 3, Day: 14},
		Description:   "Monthly savings",
	}
}

func TestBuildPair(t *testing.T) {
	out, in, err := BuildPair(params())
	if err != nil {
		t.Fatalf("BuildPair() error = %v", err)
	}

	if out.Kind != domain.KindOut || in.Kind != domain.KindIn {
		t.Errorf("kinds = %s/%s, want out/in", out.Kind, in.Kind)
	}
	if out.AccountID != "acct-1" || in.AccountID != "acct-2" {
		t.Errorf("accounts = %s/%s, want acct-1/acct-2", out.AccountID, in.AccountID)
	}
	if out.CounterAccountID != "acct-2" || in.CounterAccountID != "acct-1" {
		t.Errorf("counter accounts = %s/%s", out.CounterAccountID, in.CounterAccountID)
	}
	if out.LinkedTransactionID != in.ID || in.LinkedTransactionID != out.ID {
		t.Error("legs do not reference each other")
	}
	if !out.Amount.Equal(in.Amount) {
		t.Errorf("amounts differ: %s vs %s", out.Amount, in.Amount)
	}
	if !out.IsTransferLeg() || !in.IsTransferLeg() {
		t.Error("both legs should report as transfer legs")
	}

	// The two signed deltas must cancel out.
	if sum := out.SignedAmount().Add(in.SignedAmount()); !sum.IsZero() {
		t.Errorf("signed amounts sum to %s, want 0", sum)
	}
}

func TestBuildPair_SameAccount(t *testing.T) {
	p := params()
	p.DestinationID = p.SourceID
	if _, _, err := BuildPair(p); err == nil {
		t.Error("BuildPair() with same source and destination should fail")
	}
}

func TestBuildPair_NonPositiveAmount(t *testing.T) {
	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		p := params()
		p.Amount = amount
		if _, _, err := BuildPair(p); err == nil {
			t.Errorf("BuildPair() with amount %s should fail", amount)
		}
	}
}

func TestValidateLink(t *testing.T) {
	out, in, err := BuildPair(params())
	if err != nil {
		t.Fatalf("BuildPair() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(out, in *domain.Transaction)
	}{
		{"broken reference", func(out, in *domain.Transaction) { out.LinkedTransactionID = "elsewhere" }},
		{"amount mismatch", func(out, in *domain.Transaction) { in.Amount = decimal.NewFromInt(1) }},
		{"same kind", func(out, in *domain.Transaction) { in.Kind = domain.KindOut }},
		{"same account", func(out, in *domain.Transaction) { in.AccountID = out.AccountID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, i := *out, *in
			tt.mutate(&o, &i)
			if err := ValidateLink(&o, &i); !errors.Is(err, domain.ErrUnlinkedTransfer) {
				t.Errorf("ValidateLink() error = %v, want ErrUnlinkedTransfer", err)
			}
		})
	}

	if err := ValidateLink(out, in); err != nil {
		t.Errorf("ValidateLink() on a fresh pair = %v, want nil", err)
	}
}
