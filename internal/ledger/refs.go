package ledger

import (
	"context"
	"errors"
	"fmt"

	"conti/internal/core"
	"conti/internal/storage"
)

// TransferRefs holds the ids of the system-seeded "Transfers" spending
// category and income source. They are resolved once at startup; a
// missing row is a deployment defect, not something to rediscover on
// every transfer.
type TransferRefs struct {
	SpendingCategoryID int64
	IncomeSourceID     int64
}

// ResolveTransferRefs looks up the reserved pair and fails with
// *core.ConfigError when either is absent. Callers should treat that
// as fatal.
func ResolveTransferRefs(ctx context.Context, store storage.Store) (TransferRefs, error) {
	var refs TransferRefs

	cat, err := store.FindSystemCategory(ctx, core.KindExpense, core.TransferCategoryName)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return refs, &core.ConfigError{Missing: `system "Transfers" spending category`}
		}
		return refs, fmt.Errorf("resolve transfer refs: %w", err)
	}
	refs.SpendingCategoryID = cat.ID

	src, err := store.FindSystemCategory(ctx, core.KindIncome, core.TransferCategoryName)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return refs, &core.ConfigError{Missing: `system "Transfers" income source`}
		}
		return refs, fmt.Errorf("resolve transfer refs: %w", err)
	}
	refs.IncomeSourceID = src.ID

	return refs, nil
}
