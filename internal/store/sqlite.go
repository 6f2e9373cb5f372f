// Package store provides trade history persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// SQLiteStore implements TradeStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed trade store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the trades table and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL,
		size REAL NOT NULL,
		leverage INTEGER NOT NULL,
		stop_loss REAL,
		take_profit REAL,
		status TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		realized_pnl REAL,
		source TEXT,
		order_ids TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LogTrade inserts a new open trade record.
func (s *SQLiteStore) LogTrade(ctx context.Context, trade *models.TradeRecord) error {
	orderIDs, err := json.Marshal(trade.OrderIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal order ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, direction, entry_price, size, leverage,
			stop_loss, take_profit, status, opened_at, source, order_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.TradeID, trade.Symbol, string(trade.Direction), trade.EntryPrice,
		trade.Size, trade.Leverage, trade.StopLoss, trade.TakeProfit,
		string(trade.Status), trade.OpenedAt, string(trade.Source), string(orderIDs))
	if err != nil {
		return errors.Wrapf(errors.ErrDatabaseError, "failed to log trade %s: %v", trade.TradeID, err)
	}

	return nil
}

// CloseTrade records the exit of an open trade.
func (s *SQLiteStore) CloseTrade(ctx context.Context, tradeID string, exitPrice, realizedPnL float64, closedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, realized_pnl = ?, closed_at = ?, status = ?
		WHERE id = ? AND status = ?`,
		exitPrice, realizedPnL, closedAt, string(models.TradeClosed),
		tradeID, string(models.TradeOpen))
	if err != nil {
		return errors.Wrapf(errors.ErrDatabaseError, "failed to close trade %s: %v", tradeID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(errors.ErrDatabaseError, "failed to close trade %s: %v", tradeID, err)
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrTradeNotFound, "no open trade with id %s", tradeID)
	}

	return nil
}

// GetTrade fetches a single trade by ID.
func (s *SQLiteStore) GetTrade(ctx context.Context, tradeID string) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM trades WHERE id = ?", tradeID)
	trade, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrTradeNotFound, "no trade with id %s", tradeID)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to get trade %s: %v", tradeID, err)
	}
	return trade, nil
}

// GetOpenTrade fetches the open trade for a symbol, or nil when flat.
func (s *SQLiteStore) GetOpenTrade(ctx context.Context, symbol string) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+" FROM trades WHERE symbol = ? AND status = ? ORDER BY opened_at DESC LIMIT 1",
		symbol, string(models.TradeOpen))
	trade, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to get open trade for %s: %v", symbol, err)
	}
	return trade, nil
}

// GetTrades fetches trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query, args := buildTradeQuery(filter, "opened_at DESC")
	return s.queryTrades(ctx, query, args)
}

// GetClosedTradesByExit fetches closed trades ordered by exit time
// ascending.
func (s *SQLiteStore) GetClosedTradesByExit(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	filter.Status = models.TradeClosed
	query, args := buildTradeQuery(filter, "closed_at ASC")
	return s.queryTrades(ctx, query, args)
}

const selectColumns = `SELECT id, symbol, direction, entry_price, exit_price, size, leverage,
	stop_loss, take_profit, status, opened_at, closed_at, realized_pnl, source, order_ids`

func buildTradeQuery(filter TradeFilter, order string) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.StartDate.IsZero() {
		conditions = append(conditions, "opened_at >= ?")
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		conditions = append(conditions, "opened_at <= ?")
		args = append(args, filter.EndDate)
	}

	query := selectColumns + " FROM trades"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + order
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	return query, args
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args []interface{}) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to query trades: %v", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrDatabaseError, "failed to scan trade: %v", err)
		}
		trades = append(trades, *trade)
	}

	return trades, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	var trade models.TradeRecord
	var direction, status, source string
	var exitPrice, stopLoss, takeProfit, realizedPnL sql.NullFloat64
	var closedAt sql.NullTime
	var orderIDs sql.NullString

	err := row.Scan(&trade.TradeID, &trade.Symbol, &direction, &trade.EntryPrice,
		&exitPrice, &trade.Size, &trade.Leverage, &stopLoss, &takeProfit,
		&status, &trade.OpenedAt, &closedAt, &realizedPnL, &source, &orderIDs)
	if err != nil {
		return nil, err
	}

	trade.Direction = models.Direction(direction)
	trade.Status = models.TradeStatus(status)
	trade.Source = models.SignalSource(source)
	trade.ExitPrice = exitPrice.Float64
	trade.StopLoss = stopLoss.Float64
	trade.TakeProfit = takeProfit.Float64
	trade.RealizedPnL = realizedPnL.Float64
	if closedAt.Valid {
		t := closedAt.Time
		trade.ClosedAt = &t
	}
	if orderIDs.Valid && orderIDs.String != "" {
		if err := json.Unmarshal([]byte(orderIDs.String), &trade.OrderIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order ids: %w", err)
		}
	}

	return &trade, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ TradeStore = (*SQLiteStore)(nil)
