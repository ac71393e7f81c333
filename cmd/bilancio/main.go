// Command bilancio is the bookkeeping CLI: accounts, categories,
// transactions, transfers, and balance verification, all scoped to a
// user. Mutations go through the ledger service so balances stay
// reconciled and events reach the export queue when one is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	godotenv.Load()
	logger := log.New(log.Config{Level: slog.LevelWarn, Component: log.ComponentCLI})
	slog.SetDefault(logger.Logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		fatal(err)
	}
	defer repo.Close()

	// The event bus is optional for the CLI; without it mutations still
	// commit, they just are not exported.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Event bus unavailable, continuing without export", log.FieldError, err)
			events = nil
		} else {
			defer events.Close()
		}
	}

	svc := services.NewLedgerService(repo, events)
	ctx := context.Background()

	switch os.Args[1] {
	case "user-add":
		err = userAdd(ctx, svc, os.Args[2:])
	case "account-add":
		err = accountAdd(ctx, svc, os.Args[2:])
	case "account-ls":
		err = accountList(ctx, svc, os.Args[2:])
	case "account-rename":
		err = accountRename(ctx, svc, os.Args[2:])
	case "account-rm":
		err = accountRemove(ctx, svc, os.Args[2:])
	case "category-add":
		err = categoryAdd(ctx, svc, os.Args[2:])
	case "category-ls":
		err = categoryList(ctx, svc, os.Args[2:])
	case "category-edit":
		err = categoryEdit(ctx, svc, os.Args[2:])
	case "category-rm":
		err = categoryRemove(ctx, svc, os.Args[2:])
	case "tx-add":
		err = txAdd(ctx, svc, os.Args[2:])
	case "tx-ls":
		err = txList(ctx, svc, os.Args[2:])
	case "tx-edit":
		err = txEdit(ctx, svc, os.Args[2:])
	case "tx-rm":
		err = txRemove(ctx, svc, os.Args[2:])
	case "transfer-add":
		err = transferAdd(ctx, svc, os.Args[2:])
	case "transfer-ls":
		err = transferList(ctx, svc, os.Args[2:])
	case "transfer-edit":
		err = transferEdit(ctx, svc, os.Args[2:])
	case "transfer-rm":
		err = transferRemove(ctx, svc, os.Args[2:])
	case "seed":
		err = seed(ctx, svc, os.Args[2:])
	case "verify":
		err = verify(ctx, svc, repo, cfg, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: bilancio <command> [flags]

Users:
  user-add        -name <username>
  seed            -user <username>

Accounts:
  account-add     -user <username> -name <name> [-balance <amount>]
  account-ls      -user <username>
  account-rename  -user <username> -id <id> -name <name>
  account-rm      -user <username> -id <id>

Categories:
  category-add    -user <username> -name <name> -type <INCOME|EXPENSE>
  category-ls     -user <username>
  category-edit   -user <username> -id <id> -name <name> -type <INCOME|EXPENSE>
  category-rm     -user <username> -id <id>

Transactions:
  tx-add          -user <username> -account <id> -amount <amount> -date <YYYY-MM-DD> [-category <id>] [-desc <text>]
  tx-ls           -user <username>
  tx-edit         -user <username> -id <id> -account <id> -amount <amount> -date <YYYY-MM-DD> [-category <id>] [-desc <text>]
  tx-rm           -user <username> -id <id>

Transfers:
  transfer-add    -user <username> -from <id> -to <id> -amount <amount> -date <YYYY-MM-DD> [-desc <text>]
  transfer-ls     -user <username>
  transfer-edit   -user <username> -id <id> -from <id> -to <id> -amount <amount> -date <YYYY-MM-DD> [-desc <text>]
  transfer-rm     -user <username> -id <id>

Maintenance:
  verify          -user <username>
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// resolveUser maps the -user flag to an owner ID.
func resolveUser(ctx context.Context, svc *services.LedgerService, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("missing -user")
	}
	user, err := svc.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("user %q: %w", username, err)
	}
	return user.ID, nil
}

func userAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("user-add", flag.ExitOnError)
	name := fs.String("name", "", "username")
	fs.Parse(args)

	user, err := svc.CreateUser(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s (%s) with %d default categories\n",
		user.Username, user.ID, len(core.DefaultCategories))
	return nil
}

func seed(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	if err := svc.SeedDefaultCategories(ctx, ownerID); err != nil {
		return err
	}
	fmt.Println("Default categories seeded")
	return nil
}

func accountAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("account-add", flag.ExitOnError)
	user := fs.String("user", "", "username")
	name := fs.String("name", "", "account name")
	balance := fs.String("balance", "0", "opening balance")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	opening, err := parseSignedAmount(*balance)
	if err != nil {
		return err
	}
	account, err := svc.CreateAccount(ctx, ownerID, *name, opening)
	if err != nil {
		return err
	}
	fmt.Printf("Created account %s (%s) with balance %s\n",
		account.Name, account.ID, account.Balance.StringFixed(2))
	return nil
}

func accountList(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("account-ls", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	accounts, err := svc.ListAccounts(ctx, ownerID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBALANCE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Name, a.Balance.StringFixed(2))
	}
	return w.Flush()
}

func accountRename(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("account-rename", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "account id")
	name := fs.String("name", "", "new name")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	account, err := svc.RenameAccount(ctx, ownerID, *id, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Renamed account %s to %s\n", account.ID, account.Name)
	return nil
}

func accountRemove(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("account-rm", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "account id")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	if err := svc.DeleteAccount(ctx, ownerID, *id); err != nil {
		return err
	}
	fmt.Println("Account deleted")
	return nil
}

func categoryAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("category-add", flag.ExitOnError)
	user := fs.String("user", "", "username")
	name := fs.String("name", "", "category name")
	typ := fs.String("type", "", "INCOME or EXPENSE")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	category, err := svc.CreateCategory(ctx, ownerID, *name, core.CategoryType(*typ))
	if err != nil {
		return err
	}
	fmt.Printf("Created category %s (%s, %s)\n", category.Name, category.ID, category.Type)
	return nil
}

func categoryList(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("category-ls", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	categories, err := svc.ListCategories(ctx, ownerID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE")
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Type)
	}
	return w.Flush()
}

func categoryEdit(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("category-edit", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "category id")
	name := fs.String("name", "", "new name")
	typ := fs.String("type", "", "INCOME or EXPENSE")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	category, err := svc.UpdateCategory(ctx, ownerID, *id, *name, core.CategoryType(*typ))
	if err != nil {
		return err
	}
	fmt.Printf("Updated category %s (%s, %s)\n", category.Name, category.ID, category.Type)
	return nil
}

func categoryRemove(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("category-rm", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "category id")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	if err := svc.DeleteCategory(ctx, ownerID, *id); err != nil {
		return err
	}
	fmt.Println("Category deleted, its transactions are now uncategorized")
	return nil
}

func txInput(fs *flag.FlagSet) (account, category, amount, date, desc *string) {
	account = fs.String("account", "", "account id")
	category = fs.String("category", "", "category id (optional)")
	amount = fs.String("amount", "", "amount, e.g. 12.34")
	date = fs.String("date", "", "date YYYY-MM-DD")
	desc = fs.String("desc", "", "description")
	return
}

func buildTransactionInput(account, category, amount, date, desc string) (services.TransactionInput, error) {
	parsedAmount, err := core.ParseAmount(amount)
	if err != nil {
		return services.TransactionInput{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	parsedDate, err := core.ParseDate(date)
	if err != nil {
		return services.TransactionInput{}, fmt.Errorf("date %q: %w", date, err)
	}
	return services.TransactionInput{
		AccountID:   account,
		CategoryID:  category,
		Amount:      parsedAmount,
		Date:        parsedDate,
		Description: desc,
	}, nil
}

func txAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("tx-add", flag.ExitOnError)
	user := fs.String("user", "", "username")
	account, category, amount, date, desc := txInput(fs)
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	in, err := buildTransactionInput(*account, *category, *amount, *date, *desc)
	if err != nil {
		return err
	}
	tx, err := svc.CreateTransaction(ctx, ownerID, in)
	if err != nil {
		return err
	}
	fmt.Printf("Created transaction %s\n", tx.ID)
	return nil
}

func txList(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("tx-ls", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	transactions, err := svc.ListTransactions(ctx, ownerID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tACCOUNT\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, t := range transactions {
		category := t.CategoryID
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, t.AccountID, category, t.Amount.StringFixed(2), t.Description)
	}
	return w.Flush()
}

func txEdit(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("tx-edit", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "transaction id")
	account, category, amount, date, desc := txInput(fs)
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	in, err := buildTransactionInput(*account, *category, *amount, *date, *desc)
	if err != nil {
		return err
	}
	if _, err := svc.UpdateTransaction(ctx, ownerID, *id, in); err != nil {
		return err
	}
	fmt.Printf("Updated transaction %s\n", *id)
	return nil
}

func txRemove(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("tx-rm", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "transaction id")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	if err := svc.DeleteTransaction(ctx, ownerID, *id); err != nil {
		return err
	}
	fmt.Println("Transaction deleted, balance restored")
	return nil
}

func transferAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("transfer-add", flag.ExitOnError)
	user := fs.String("user", "", "username")
	from := fs.String("from", "", "source account id")
	to := fs.String("to", "", "destination account id")
	amount := fs.String("amount", "", "amount, e.g. 12.34")
	date := fs.String("date", "", "date YYYY-MM-DD")
	desc := fs.String("desc", "", "description")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	parsedAmount, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	parsedDate, err := core.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("date %q: %w", *date, err)
	}
	tr, err := svc.CreateTransfer(ctx, ownerID, services.TransferInput{
		FromAccountID: *from,
		ToAccountID:   *to,
		Amount:        parsedAmount,
		Date:          parsedDate,
		Description:   *desc,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created transfer %s\n", tr.ID)
	return nil
}

func transferList(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("transfer-ls", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	transfers, err := svc.ListTransfers(ctx, ownerID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tTO\tAMOUNT\tDESCRIPTION")
	for _, t := range transfers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, t.FromAccountID, t.ToAccountID, t.Amount.StringFixed(2), t.Description)
	}
	return w.Flush()
}

func transferEdit(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("transfer-edit", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "transfer id")
	from := fs.String("from", "", "source account id")
	to := fs.String("to", "", "destination account id")
	amount := fs.String("amount", "", "amount, e.g. 12.34")
	date := fs.String("date", "", "date YYYY-MM-DD")
	desc := fs.String("desc", "", "description")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	parsedAmount, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	parsedDate, err := core.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("date %q: %w", *date, err)
	}
	if _, err := svc.UpdateTransfer(ctx, ownerID, *id, services.TransferInput{
		FromAccountID: *from,
		ToAccountID:   *to,
		Amount:        parsedAmount,
		Date:          parsedDate,
		Description:   *desc,
	}); err != nil {
		return err
	}
	fmt.Printf("Updated transfer %s\n", *id)
	return nil
}

func transferRemove(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("transfer-rm", flag.ExitOnError)
	user := fs.String("user", "", "username")
	id := fs.String("id", "", "transfer id")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	if err := svc.DeleteTransfer(ctx, ownerID, *id); err != nil {
		return err
	}
	fmt.Println("Transfer deleted, balances restored")
	return nil
}

func verify(ctx context.Context, svc *services.LedgerService, repo *storage.SQLiteRepository, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	user := fs.String("user", "", "username")
	fs.Parse(args)

	ownerID, err := resolveUser(ctx, svc, *user)
	if err != nil {
		return err
	}
	drifts, err := services.NewVerifier(repo, cfg.VerifyConcurrency).VerifyBalances(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		fmt.Println("All balances match the journal")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tSTORED\tEXPECTED\tDRIFT")
	for _, d := range drifts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.AccountName,
			core.FromCents(d.StoredCents).StringFixed(2),
			core.FromCents(d.ExpectedCents).StringFixed(2),
			core.FromCents(d.DeltaCents).StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return fmt.Errorf("%d account(s) drifted", len(drifts))
}

// parseSignedAmount parses an amount that may be negative, for opening
// balances.
func parseSignedAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q: %w", s, core.ErrInvalidAmount)
	}
	if err := core.ValidateScale(d); err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return d, nil
}
