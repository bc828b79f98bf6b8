package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

var (
	firmsPath   = flag.String("firms", "", "Path to firms CSV (required)")
	usersPath   = flag.String("users", "", "Path to users CSV (optional)")
	namespace   = flag.String("namespace", os.Getenv("SEED_NAMESPACE"), "UUID namespace for derived ids (stable forever)")
	dsn         = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	dryRun      = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	confirm     = flag.Bool("confirm", false, "Required to write")
	advisoryKey = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key (e.g., 424242). 0 = disabled")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *firmsPath == "" {
		fatalf("--firms is required")
	}
	ns, err := uuid.Parse(*namespace)
	if err != nil {
		fatalf("--namespace must be a uuid: %v", err)
	}

	firms, users, err := load(ns)
	if err != nil {
		fatalf("CSV error: %v", err)
	}
	fmt.Printf("Loaded %d firms and %d users\n", len(firms), len(users))

	if *dryRun {
		for _, f := range firms {
			fmt.Printf("  firm %-20s %s  %s\n", f.Key, f.ID, f.Name)
		}
		for _, u := range users {
			fmt.Printf("  user %-30s %s  role=%s firm=%s\n", u.Email, u.ID, u.Role, u.FirmKey)
		}
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if !*confirm {
		fatalf("Refusing to run without --confirm. Add --dry-run to preview.")
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if *advisoryKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, *advisoryKey); err != nil {
			fatalf("advisory lock: %v", err)
		}
	}

	before, err := countAll(ctx, tx)
	if err != nil {
		fatalf("pre-count (has the server run its migrations?): %v", err)
	}
	fmt.Printf("Before: firms=%d users=%d\n", before.Firms, before.Users)

	if err := upsertFirms(ctx, tx, firms); err != nil {
		fatalf("firms: %v", err)
	}
	firmIDs := make(map[string]uuid.UUID, len(firms))
	for _, f := range firms {
		firmIDs[f.Key] = f.ID
	}
	if err := upsertUsers(ctx, tx, users, firmIDs, bcrypt.DefaultCost); err != nil {
		fatalf("users: %v", err)
	}

	after, err := countAll(ctx, tx)
	if err != nil {
		fatalf("post-count: %v", err)
	}
	fmt.Printf("After:  firms=%d users=%d\n", after.Firms, after.Users)

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	fmt.Println("Seed complete")
}

func load(ns uuid.UUID) ([]FirmRow, []UserRow, error) {
	f, err := os.Open(*firmsPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	firms, err := LoadFirms(f, ns)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", *firmsPath, err)
	}
	if *usersPath == "" {
		return firms, nil, nil
	}

	u, err := os.Open(*usersPath)
	if err != nil {
		return nil, nil, err
	}
	defer u.Close()
	users, err := LoadUsers(u, ns, firms)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", *usersPath, err)
	}
	return firms, users, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
