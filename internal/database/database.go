package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"rugroulette/internal/config"
	"rugroulette/internal/game"
	"rugroulette/internal/logging"
)

// Service represents the rug and spin history store.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	// DB exposes the pool for migrations.
	DB() *sql.DB

	RecordRug(ctx context.Context, pool game.Pool) error
	RecordSpin(ctx context.Context, spin game.SpinRecord) error

	// RecentRugs returns up to limit resolved pools, newest first.
	RecentRugs(ctx context.Context, limit int) ([]game.Pool, error)

	// Close terminates the database connection.
	Close() error
}

type service struct {
	db   *sql.DB
	name string
	log  zerolog.Logger
}

const maxHistory = 100

// New opens the pgx pool and checks the connection.
func New(cfg config.DatabaseConfig, logger zerolog.Logger) (Service, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Database, err)
	}

	log := logging.WithComponent(logger, "database")
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Database connected")
	return &service{db: db, name: cfg.Database, log: log}, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}

	return stats
}

func (s *service) RecordRug(ctx context.Context, pool game.Pool) error {
	if pool.Winner == nil || pool.RugEvent == nil {
		return fmt.Errorf("pool %s is not resolved", pool.ID)
	}
	players, err := json.Marshal(pool.Players)
	if err != nil {
		return fmt.Errorf("failed to marshal players: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rug_events (pool_id, winner_id, winner_address, winner_stake, total_prize, player_count, max_players, min_stake, max_stake, players, rugged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pool_id) DO NOTHING`,
		pool.ID,
		pool.Winner.ID,
		pool.Winner.Address,
		pool.Winner.Stake.String(),
		pool.RugEvent.TotalPrize.String(),
		len(pool.Players),
		pool.MaxPlayers,
		pool.MinStake.String(),
		pool.MaxStake.String(),
		players,
		pool.RugEvent.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rug event %s: %w", pool.ID, err)
	}
	return nil
}

func (s *service) RecordSpin(ctx context.Context, spin game.SpinRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quick_spins (session_id, address, bet_amount, multiplier, won, amount, balance, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(spin.SessionID),
		spin.Address,
		spin.BetAmount.String(),
		spin.Multiplier.String(),
		spin.Won,
		spin.Amount.String(),
		spin.Balance.String(),
		spin.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quick spin: %w", err)
	}
	return nil
}

func (s *service) RecentRugs(ctx context.Context, limit int) ([]game.Pool, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, winner_id, total_prize, max_players, min_stake, max_stake, players, rugged_at
		FROM rug_events
		ORDER BY rugged_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rug events: %w", err)
	}
	defer rows.Close()

	pools := make([]game.Pool, 0, limit)
	for rows.Next() {
		pool, err := scanRug(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rug events: %w", err)
	}
	return pools, nil
}

func scanRug(rows *sql.Rows) (game.Pool, error) {
	var (
		pool     game.Pool
		winnerID string
		prize    string
		minStake string
		maxStake string
		players  []byte
		ruggedAt time.Time
	)
	if err := rows.Scan(&pool.ID, &winnerID, &prize, &pool.MaxPlayers, &minStake, &maxStake, &players, &ruggedAt); err != nil {
		return pool, fmt.Errorf("failed to scan rug event: %w", err)
	}
	if err := json.Unmarshal(players, &pool.Players); err != nil {
		return pool, fmt.Errorf("failed to decode players of pool %s: %w", pool.ID, err)
	}

	var err error
	if pool.MinStake, err = parseAmount(minStake); err != nil {
		return pool, err
	}
	if pool.MaxStake, err = parseAmount(maxStake); err != nil {
		return pool, err
	}
	total, err := parseAmount(prize)
	if err != nil {
		return pool, err
	}

	pool.TotalStaked = total
	pool.Status = game.PoolStatusEnded
	for i := range pool.Players {
		if pool.Players[i].ID == winnerID {
			winner := pool.Players[i]
			pool.Winner = &winner
			pool.RugEvent = &game.RugEvent{Timestamp: ruggedAt, Winner: winner, TotalPrize: total}
			break
		}
	}
	return pool, nil
}

func (s *service) Close() error {
	s.log.Info().Str("database", s.name).Msg("Disconnected from database")
	return s.db.Close()
}
