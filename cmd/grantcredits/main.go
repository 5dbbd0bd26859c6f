package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderly/internal/adapter/repo"
	"renderly/internal/domain"
	"renderly/internal/infra"
)

// grantcredits credits a user's ledger out of band: support refunds,
// promotions, manual correction after a billing dispute.
func main() {
	var (
		idFlag      string
		emailFlag   string
		creditsFlag int
	)
	flag.StringVar(&idFlag, "id", "", "user ID to credit (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to credit")
	flag.IntVar(&creditsFlag, "credits", 0, "number of credits to grant (must be > 0)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if creditsFlag <= 0 {
		exitWithError(errors.New("-credits must be a positive number"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "grantcredits")
	runner := infra.NewSQLRunner(pool, logger)
	users := repo.NewUserRepository(runner)
	ledger := repo.NewLedgerRepository(runner)

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	balance, err := ledger.Balance(ctx, user.ID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load balance: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Kind:         domain.LedgerEntryGrant,
		Amount:       creditsFlag,
		BalanceAfter: balance + creditsFlag,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ledger.Append(ctx, entry); err != nil {
		exitWithError(fmt.Errorf("failed to append grant: %w", err))
	}

	fmt.Printf("User %s (%s) granted %d credits, balance %d -> %d\n",
		user.ID, user.Email, creditsFlag, balance, entry.BalanceAfter)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
