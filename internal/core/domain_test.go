package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEntryKindSign(t *testing.T) {
	if got := KindIncome.Sign(); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("income sign = %s, want 1", got)
	}
	if got := KindExpense.Sign(); !got.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("expense sign = %s, want -1", got)
	}
}

func TestEntryEffect(t *testing.T) {
	amount := decimal.RequireFromString("12.50")
	cases := []struct {
		kind EntryKind
		want string
	}{
		{KindIncome, "12.5"},
		{KindExpense, "-12.5"},
	}
	for i, tc := range cases {
		e := Entry{Kind: tc.kind, Amount: amount}
		if got := e.Effect(); got.String() != tc.want {
			t.Fatalf("case %d effect = %s, want %s", i, got, tc.want)
		}
	}
}

func TestEntryKindString(t *testing.T) {
	if KindIncome.String() != "income" || KindExpense.String() != "expense" {
		t.Fatalf("unexpected kind strings: %q %q", KindIncome, KindExpense)
	}
	if EntryKind(99).String() != "unknown" {
		t.Fatalf("expected unknown for out-of-range kind")
	}
}

func TestCategorySystem(t *testing.T) {
	if !(Category{UserID: 0}).System() {
		t.Fatalf("user 0 category should be system")
	}
	if (Category{UserID: 7}).System() {
		t.Fatalf("owned category should not be system")
	}
}
