package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/storage/postgres"
)

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Cart  []struct {
		ProductID string          `json:"product_id"`
		VariantID string          `json:"variant_id"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Currency  string          `json:"currency"`
		Quantity  int             `json:"quantity"`
	} `json:"cart"`
}

func main() {
	var (
		databaseURL string
		usersFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&usersFile, "users-file", "db/seed/users.json", "path to users JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, usersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, usersFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedUsers(ctx, pool, usersFile)
}

const upsertUserSQL = `INSERT INTO users (id, name, email)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
		email = EXCLUDED.email`

func seedUsers(ctx context.Context, pool *pgxpool.Pool, usersFile string) error {
	slog.Info("reading users file", slog.String("path", usersFile))

	data, err := os.ReadFile(usersFile)
	if err != nil {
		return errors.Wrap(err, "read users file")
	}

	var users []userJSON
	if err := json.Unmarshal(data, &users); err != nil {
		return errors.Wrap(err, "parse users JSON")
	}

	carts := postgres.NewCartRepository(pool)

	slog.Info("upserting users", slog.Int("count", len(users)))

	for _, u := range users {
		if _, err := pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}

		for _, it := range u.Cart {
			price, err := money.FromDecimal(it.UnitPrice, it.Currency)
			if err != nil {
				return errors.Wrapf(err, "price of %s for user %s", it.ProductID, u.ID)
			}
			if err := carts.AddItem(ctx, u.ID, cart.Item{
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				UnitPrice: price,
				Quantity:  it.Quantity,
			}); err != nil {
				return errors.Wrapf(err, "add cart item %s for user %s", it.ProductID, u.ID)
			}
		}

		slog.Info("upserted user", slog.String("id", u.ID), slog.Int("cart_items", len(u.Cart)))
	}

	return nil
}
