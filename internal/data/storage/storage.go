package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/songzhibin97/stockflux/internal/models"

	_ "github.com/lib/pq"
)

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(connStr string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStorage{db: db}

	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return s, nil
}

// SaveTrade implements Storage interface
func (s *PostgresStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	query := `
        INSERT INTO trades (
            symbol, region, action, quantity, price, status, order_id, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        )
    `

	_, err := s.db.ExecContext(ctx, query,
		trade.Symbol,
		string(trade.Region),
		trade.Action,
		trade.Quantity,
		trade.Price,
		trade.Status,
		trade.OrderID,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// SaveSignal implements Storage interface
func (s *PostgresStorage) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	query := `
        INSERT INTO signals (
            symbol, decision, confidence, reasoning, created_at
        ) VALUES (
            $1, $2, $3, $4, $5
        )
    `

	_, err := s.db.ExecContext(ctx, query,
		signal.Symbol,
		signal.Decision,
		signal.Confidence,
		signal.Reasoning,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}

	return nil
}

// SaveDecisionLog implements Storage interface
func (s *PostgresStorage) SaveDecisionLog(ctx context.Context, entry *models.DecisionLog) error {
	query := `
        INSERT INTO ai_decision_log (
            symbol, region, decision, confidence, reasoning,
            current_price, was_executed, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        )
    `

	_, err := s.db.ExecContext(ctx, query,
		entry.Symbol,
		string(entry.Region),
		entry.Decision,
		entry.Confidence,
		entry.Reasoning,
		entry.CurrentPrice,
		entry.WasExecuted,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to save decision log: %w", err)
	}

	return nil
}

// GetRecentTrades implements Storage interface
func (s *PostgresStorage) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	query := `
        SELECT id, symbol, region, action, quantity, price, status, order_id, created_at
        FROM trades
        ORDER BY created_at DESC
        LIMIT $1
    `

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var result []models.Trade
	for rows.Next() {
		var trade models.Trade
		var region string
		err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&region,
			&trade.Action,
			&trade.Quantity,
			&trade.Price,
			&trade.Status,
			&trade.OrderID,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.Region = models.Region(region)
		result = append(result, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	return result, nil
}

func (s *PostgresStorage) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(50) NOT NULL,
			region VARCHAR(10) NOT NULL,
			action VARCHAR(20) NOT NULL,
			quantity INT NOT NULL,
			price NUMERIC(18, 4) NOT NULL,
			status VARCHAR(30),
			order_id VARCHAR(100),
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(50) NOT NULL,
			decision VARCHAR(20) NOT NULL,
			confidence NUMERIC(5, 4),
			reasoning TEXT,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ai_decision_log (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(50) NOT NULL,
			region VARCHAR(10) NOT NULL,
			decision VARCHAR(20) NOT NULL,
			confidence NUMERIC(5, 4),
			reasoning TEXT,
			current_price NUMERIC(18, 4),
			was_executed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}
