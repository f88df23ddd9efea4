package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cargo-backoffice/internal/app"
	"github.com/noah-isme/cargo-backoffice/internal/auth"
	"github.com/noah-isme/cargo-backoffice/internal/benefit"
	"github.com/noah-isme/cargo-backoffice/internal/branch"
	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/config"
	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/query"
	"github.com/noah-isme/cargo-backoffice/internal/tariff"
)

var (
	productTypes = []string{"Clothing", "Electronics", "Cosmetics", "Household", "Documents"}

	nomenclatures = []struct {
		Name     string
		Price    string
		Editable bool
	}{
		{"Packing bag", "1.50", false},
		{"Cardboard box", "4.00", false},
		{"Bubble wrap", "2.25", false},
		{"Insurance", "0.00", true},
		{"Courier delivery", "10.00", true},
	}

	counterparties = []struct {
		Name  string
		Phone string
	}{
		{"Aigerim Trading", "+77010000001"},
		{"Bakyt Logistics", "+77010000002"},
		{"Chinar Textile", "+77010000003"},
		{"Daulet Retail", "+77010000004"},
	}

	branches = []branch.CreateInput{
		{Code: "ALA", Name: "Almaty", Address: "Tole bi 101"},
		{Code: "NQZ", Name: "Astana", Address: "Kabanbay batyr 11"},
		{Code: "URC", Name: "Urumqi", Address: "Youhao Road 8"},
	}

	users = []struct {
		Email string
		Name  string
		Role  string
	}{
		{"admin@cargo.local", "Admin", auth.RoleAdmin},
		{"manager@cargo.local", "Manager", auth.RoleManager},
		{"operator@cargo.local", "Operator", auth.RoleOperator},
		{"cashier@cargo.local", "Cashier", auth.RoleCashier},
	}
)

func main() {
	password := flag.String("password", "changeme123", "password for every seeded user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", cfg.LogLevel).With().Str("tool", "seeder").Logger()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deps, err := app.Open(ctx, cfg, logger, "cargo-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(cfg, zerolog.Nop(), deps.DB, deps.Redis, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	if err := seedReference(ctx, deps.DB); err != nil {
		logger.Fatal().Err(err).Msg("seed reference data")
	}

	branchIDs, err := seedBranches(ctx, svcs.Branches)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed branches")
	}
	logger.Info().Int("count", len(branchIDs)).Msg("branches ready")

	if err := seedTariffs(ctx, deps.DB, svcs.Tariffs, branchIDs); err != nil {
		logger.Fatal().Err(err).Msg("seed tariffs")
	}
	if err := seedNomenclature(ctx, deps.DB, svcs.Branches, branchIDs); err != nil {
		logger.Fatal().Err(err).Msg("seed branch nomenclature")
	}
	if err := seedBenefits(ctx, deps.DB, svcs.Benefits); err != nil {
		logger.Fatal().Err(err).Msg("seed benefits")
	}

	for _, u := range users {
		in := auth.CreateUserInput{Email: u.Email, Name: u.Name, Password: *password, Role: u.Role}
		if u.Role == auth.RoleOperator || u.Role == auth.RoleCashier {
			in.BranchID = &branchIDs[0]
		}
		if _, err := svcs.Auth.CreateUser(ctx, in); err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.Code == "EMAIL_ALREADY_USED" {
				logger.Info().Str("email", u.Email).Msg("user exists")
				continue
			}
			logger.Fatal().Err(err).Str("email", u.Email).Msg("seed user")
		}
		logger.Info().Str("email", u.Email).Str("role", u.Role).Msg("user created")
	}

	logger.Info().Msg("seeding completed")
}

func seedReference(ctx context.Context, pool *pgxpool.Pool) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, name := range productTypes {
			batch.Queue(`INSERT INTO product_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		}
		for _, n := range nomenclatures {
			batch.Queue(`INSERT INTO nomenclatures (name, price, editable)
				SELECT $1, $2, $3 WHERE NOT EXISTS (SELECT 1 FROM nomenclatures WHERE name = $1)`,
				n.Name, decimal.RequireFromString(n.Price), n.Editable)
		}
		for _, c := range counterparties {
			batch.Queue(`INSERT INTO counterparties (name, phone)
				SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM counterparties WHERE phone = $2)`,
				c.Name, c.Phone)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func seedBranches(ctx context.Context, svc *branch.Service) ([]int64, error) {
	existing, _, err := svc.List(ctx, query.Params{Page: 1, Limit: query.MaxLimit})
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]int64, len(existing))
	for _, b := range existing {
		byCode[b.Code] = b.ID
	}
	ids := make([]int64, 0, len(branches))
	for _, in := range branches {
		if id, ok := byCode[in.Code]; ok {
			ids = append(ids, id)
			continue
		}
		b, err := svc.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func seedTariffs(ctx context.Context, pool *pgxpool.Pool, svc *tariff.Service, branchIDs []int64) error {
	typeIDs, err := ids(ctx, pool, `SELECT id FROM product_types ORDER BY id`)
	if err != nil {
		return err
	}
	items := make([]tariff.UpsertInput, 0, len(branchIDs)*len(typeIDs))
	for i, b := range branchIDs {
		for j, pt := range typeIDs {
			price := decimal.NewFromInt(int64(3 + i + 2*j)).Div(decimal.NewFromInt(2))
			items = append(items, tariff.UpsertInput{BranchID: b, ProductTypeID: pt, Price: price})
		}
	}
	_, err = svc.Upsert(ctx, items)
	return err
}

func seedNomenclature(ctx context.Context, pool *pgxpool.Pool, svc *branch.Service, branchIDs []int64) error {
	nomIDs, err := ids(ctx, pool, `SELECT id FROM nomenclatures ORDER BY id`)
	if err != nil {
		return err
	}
	for i, b := range branchIDs {
		// every branch but the last sells the full list
		allowed := nomIDs
		if i == len(branchIDs)-1 && len(nomIDs) > 2 {
			allowed = nomIDs[:2]
		}
		if err := svc.SaveNomenclature(ctx, b, allowed); err != nil {
			return err
		}
	}
	return nil
}

func seedBenefits(ctx context.Context, pool *pgxpool.Pool, svc *benefit.Service) error {
	cpIDs, err := ids(ctx, pool, `SELECT id FROM counterparties ORDER BY id`)
	if err != nil {
		return err
	}
	if len(cpIDs) < 2 {
		return nil
	}
	var active int
	if err := pool.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM discounts WHERE active) + (SELECT COUNT(*) FROM cash_backs WHERE active)`).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	if _, err := svc.CreateDiscount(ctx, benefit.CreateDiscountInput{CounterpartyID: cpIDs[0], Value: decimal.NewFromInt(5)}); err != nil {
		return err
	}
	_, err = svc.CreateCashback(ctx, benefit.CreateCashbackInput{CounterpartyID: cpIDs[1], Percent: decimal.NewFromInt(3)})
	return err
}

func ids(ctx context.Context, pool *pgxpool.Pool, sql string) ([]int64, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
