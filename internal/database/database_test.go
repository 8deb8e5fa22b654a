package database

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rugroulette/internal/config"
	"rugroulette/internal/game"
)

var testConfig config.DatabaseConfig

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testConfig = config.DatabaseConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		Database: dbName,
		Username: dbUser,
		Password: dbPwd,
		Schema:   "public",
		SSLMode:  "disable",
	}

	return dbContainer.Terminate, err
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func newMigratedService(t *testing.T) Service {
	t.Helper()
	srv, err := New(testConfig, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	if err := RunMigrations(srv.DB(), migrationsDir(t)); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return srv
}

func TestHealth(t *testing.T) {
	srv, err := New(testConfig, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer srv.Close()

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}

	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}

	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestMigrations(t *testing.T) {
	srv := newMigratedService(t)

	version, dirty, err := GetMigrationVersion(srv.DB(), migrationsDir(t))
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}

	// Applying again is a no-op.
	if err := RunMigrations(srv.DB(), migrationsDir(t)); err != nil {
		t.Errorf("second RunMigrations() error = %v", err)
	}
}

func TestRecordAndReadRugs(t *testing.T) {
	srv := newMigratedService(t)
	ctx := context.Background()

	first := resolvedPool(t, time.Now().Add(-time.Minute), 10, 20)
	second := resolvedPool(t, time.Now(), 5)

	for _, pool := range []game.Pool{first, second, first} {
		if err := srv.RecordRug(ctx, pool); err != nil {
			t.Fatalf("RecordRug(%s) error = %v", pool.ID, err)
		}
	}

	rugs, err := srv.RecentRugs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRugs() error = %v", err)
	}
	if len(rugs) < 2 || rugs[0].ID != second.ID {
		t.Fatalf("RecentRugs() = %+v", rugs)
	}

	var got game.Pool
	for _, r := range rugs {
		if r.ID == first.ID {
			got = r
		}
	}
	if got.ID == "" {
		t.Fatal("first pool missing from history")
	}
	if !got.TotalStaked.Equal(decimal.NewFromInt(30)) || len(got.Players) != 2 {
		t.Errorf("history pool = %+v", got)
	}
	if got.Winner == nil || got.Winner.ID != first.Winner.ID || got.Status != game.PoolStatusEnded {
		t.Errorf("winner = %+v, want %+v", got.Winner, first.Winner)
	}

	limited, err := srv.RecentRugs(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("RecentRugs(1) = %d rows, %v", len(limited), err)
	}
}

func TestRecordRug_Unresolved(t *testing.T) {
	srv := newMigratedService(t)
	pool := game.NewPool(game.DefaultPoolConfig(), 10).Clone()
	if err := srv.RecordRug(context.Background(), pool); err == nil {
		t.Error("RecordRug() of a waiting pool should fail")
	}
}

func TestRecordSpin(t *testing.T) {
	srv := newMigratedService(t)
	err := srv.RecordSpin(context.Background(), game.SpinRecord{
		SessionID:  "s1",
		Address:    "wallet",
		BetAmount:  decimal.RequireFromString("2.5"),
		Multiplier: decimal.RequireFromString("1.2"),
		Won:        true,
		Amount:     decimal.RequireFromString("3"),
		Balance:    decimal.RequireFromString("100.5"),
		SettledAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordSpin() error = %v", err)
	}

	var n int
	if err := srv.DB().QueryRow(`SELECT COUNT(*) FROM quick_spins WHERE address = 'wallet'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n < 1 {
		t.Errorf("quick_spins rows = %d", n)
	}
}

func resolvedPool(t *testing.T, at time.Time, stakes ...int64) game.Pool {
	t.Helper()
	pool := game.NewPool(game.DefaultPoolConfig(), 0)
	for i, stake := range stakes {
		s := &game.Session{
			ID:      game.SessionID(string(rune('a' + i))),
			Address: "wallet",
			Balance: decimal.NewFromInt(100),
		}
		if _, err := pool.Admit(s, decimal.NewFromInt(stake), at); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := pool.Resolve(game.NewSeededRand(3), at); !ok {
		t.Fatal("Resolve() reported an empty pool")
	}
	return pool.Clone()
}
