package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"conti/internal/cli"
	"conti/internal/config"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"
)

const usage = `Usage: conti <command>

Commands:
  init      run migrations and check the reserved transfer references
  verify    recompute wallet balances and report drift
  transfer  move money between two wallets:
            conti transfer <user_id> <source_wallet_id> <destination_wallet_id> <amount>
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext()
	defer cancel()

	switch os.Args[1] {
	case "init":
		runInit(ctx, logger, cfg)
	case "verify":
		runVerify(ctx, logger, cfg)
	case "transfer":
		runTransfer(ctx, logger, cfg, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// runInit opens the store (applying pending migrations) and resolves
// the reserved transfer references, so a broken deployment fails here
// instead of on the first transfer.
func runInit(ctx context.Context, logger *log.Logger, cfg *config.Config) {
	store := cli.InitStore(logger, cfg)
	defer store.Close()

	refs, err := ledger.ResolveTransferRefs(ctx, store)
	if err != nil {
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Error("Reserved transfer references missing; re-run migrations", "error", err)
		} else {
			logger.Error("Failed to resolve transfer references", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("Ledger initialized",
		"path", cfg.SQLiteDBPath,
		"transfer_spending_category_id", refs.SpendingCategoryID,
		"transfer_income_source_id", refs.IncomeSourceID)
}

// runVerify recomputes every wallet balance of every user and exits
// non-zero when any wallet drifted from the sum of its entries.
func runVerify(ctx context.Context, logger *log.Logger, cfg *config.Config) {
	store := cli.InitStore(logger, cfg)
	defer store.Close()

	vlog := logger.WithComponent(log.ComponentVerify)

	users, err := store.ListUsers(ctx)
	if err != nil {
		vlog.Error("Failed to list users", "error", err)
		os.Exit(1)
	}

	drifted := 0
	for _, user := range users {
		drifts, err := ledger.VerifyUser(ctx, store, user.ID, cfg.VerifyConcurrency)
		if err != nil {
			vlog.Error("Verification failed", "user_id", user.ID, "error", err)
			os.Exit(1)
		}
		for _, d := range drifts {
			drifted++
			vlog.Error("Wallet balance drifted",
				"user_id", user.ID,
				"wallet_id", d.Wallet.ID,
				"wallet", d.Wallet.Name,
				"stored", d.Wallet.Balance.String(),
				"computed", d.Computed.String(),
				"diff", d.Diff().String())
		}
	}

	if drifted > 0 {
		vlog.Error("Verification found drifted wallets", "count", drifted)
		os.Exit(1)
	}

	vlog.Info("All wallet balances consistent", "users", len(users))
}

// runTransfer performs one wallet-to-wallet transfer, publishing the
// completion event when AMQP is configured.
func runTransfer(ctx context.Context, logger *log.Logger, cfg *config.Config, args []string) {
	if len(args) != 4 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	userID, err1 := strconv.ParseInt(args[0], 10, 64)
	sourceID, err2 := strconv.ParseInt(args[1], 10, 64)
	destID, err3 := strconv.ParseInt(args[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Fprintf(os.Stderr, "user and wallet ids must be integers\n\n%s", usage)
		os.Exit(2)
	}
	amount, err := core.ParseAmount(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount %q: %v\n", args[3], err)
		os.Exit(2)
	}

	store := cli.InitStore(logger, cfg)
	defer store.Close()

	refs, err := ledger.ResolveTransferRefs(ctx, store)
	if err != nil {
		logger.Error("Failed to resolve transfer references", "error", err)
		os.Exit(1)
	}

	var sink ledger.EventSink
	if pub := cli.InitPublisher(logger, cfg); pub != nil {
		defer pub.Close()
		sink = pub
	}

	engine := ledger.New(store, refs, sink)

	res, err := engine.Transfer(ctx, ledger.TransferRequest{
		UserID:              userID,
		SourceWalletID:      sourceID,
		DestinationWalletID: destID,
		Amount:              amount,
	})
	if err != nil {
		logger.Error("Transfer failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Transfer completed",
		"source", res.Source.Name,
		"source_balance", res.Source.Balance.String(),
		"destination", res.Destination.Name,
		"destination_balance", res.Destination.Balance.String(),
		"amount", amount.String())
}
