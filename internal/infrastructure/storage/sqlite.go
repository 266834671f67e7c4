package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// SQLiteStore implements domain.PositionRepository. Decimal values are stored
// as TEXT in their exact string form so round-trips lose no precision.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			take_stage TEXT NOT NULL,
			trailing_stop TEXT,
			realized_profit TEXT NOT NULL,
			additional_margin TEXT NOT NULL,
			status TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions(symbol, status);`,
		`CREATE TABLE IF NOT EXISTS stages (
			position_id TEXT NOT NULL,
			stage_index INTEGER NOT NULL,
			invested TEXT NOT NULL,
			leverage TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			signal_score TEXT NOT NULL,
			reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			PRIMARY KEY (position_id, stage_index)
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePosition(ctx context.Context, p *domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO positions (id, symbol, direction, take_stage, trailing_stop, realized_profit, additional_margin, status, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		p.ID, p.Symbol, string(p.Direction), string(p.TakeStage), trailingStopText(p),
		p.RealizedProfit.String(), p.AdditionalMargin.String(), string(p.Status), p.OpenedAt, p.ClosedAt); err != nil {
		return err
	}
	for _, st := range p.Stages {
		if err := insertStage(ctx, tx, p.ID, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdatePosition rewrites the position's scalar state and appends any stage
// rows not yet stored. Stage rows are insert-only, matching the append-only
// stage lifecycle.
func (s *SQLiteStore) UpdatePosition(ctx context.Context, p *domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE positions SET take_stage = ?, trailing_stop = ?, realized_profit = ?, additional_margin = ?, status = ?, closed_at = ?
			  WHERE id = ?`
	res, err := tx.ExecContext(ctx, query,
		string(p.TakeStage), trailingStopText(p), p.RealizedProfit.String(),
		p.AdditionalMargin.String(), string(p.Status), p.ClosedAt, p.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("position %s not found", p.ID)
	}
	for _, st := range p.Stages {
		if err := insertStage(ctx, tx, p.ID, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertStage(ctx context.Context, tx *sql.Tx, positionID string, st domain.Stage) error {
	query := `INSERT OR IGNORE INTO stages (position_id, stage_index, invested, leverage, entry_price, signal_score, reason, opened_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		positionID, st.Index, st.Invested.String(), st.Leverage.String(),
		st.EntryPrice.String(), st.SignalScore.String(), string(st.Reason), st.OpenedAt)
	return err
}

func trailingStopText(p *domain.Position) any {
	if p.TrailingStop == nil {
		return nil
	}
	return p.TrailingStop.String()
}

func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT id, symbol, direction, take_stage, trailing_stop, realized_profit, additional_margin, status, opened_at, closed_at
			  FROM positions WHERE id = ?`
	p, err := scanPosition(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadStages(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) ListOpenPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	query := `SELECT id, symbol, direction, take_stage, trailing_stop, realized_profit, additional_margin, status, opened_at, closed_at
			  FROM positions WHERE symbol = ? AND status = ? ORDER BY opened_at`
	return s.queryPositions(ctx, query, symbol, string(domain.StatusOpen))
}

func (s *SQLiteStore) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT id, symbol, direction, take_stage, trailing_stop, realized_profit, additional_margin, status, opened_at, closed_at
			  FROM positions ORDER BY opened_at`
	return s.queryPositions(ctx, query)
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range positions {
		if err := s.loadStages(ctx, p); err != nil {
			return nil, err
		}
	}
	return positions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p            domain.Position
		direction    string
		takeStage    string
		status       string
		trailingStop sql.NullString
		realized     string
		extraMargin  string
		closedAt     sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Symbol, &direction, &takeStage, &trailingStop,
		&realized, &extraMargin, &status, &p.OpenedAt, &closedAt); err != nil {
		return nil, err
	}
	p.Direction = domain.Direction(direction)
	p.TakeStage = domain.ProfitTakeStage(takeStage)
	p.Status = domain.PositionStatus(status)

	var err error
	if p.RealizedProfit, err = decimal.NewFromString(realized); err != nil {
		return nil, fmt.Errorf("corrupt realized_profit for %s: %w", p.ID, err)
	}
	if p.AdditionalMargin, err = decimal.NewFromString(extraMargin); err != nil {
		return nil, fmt.Errorf("corrupt additional_margin for %s: %w", p.ID, err)
	}
	if trailingStop.Valid {
		ts, err := decimal.NewFromString(trailingStop.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt trailing_stop for %s: %w", p.ID, err)
		}
		p.TrailingStop = &ts
	}
	if closedAt.Valid {
		at := closedAt.Time
		p.ClosedAt = &at
	}
	return &p, nil
}

func (s *SQLiteStore) loadStages(ctx context.Context, p *domain.Position) error {
	query := `SELECT stage_index, invested, leverage, entry_price, signal_score, reason, opened_at
			  FROM stages WHERE position_id = ? ORDER BY stage_index`
	rows, err := s.db.QueryContext(ctx, query, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st       domain.Stage
			invested string
			leverage string
			entry    string
			score    string
			reason   string
		)
		if err := rows.Scan(&st.Index, &invested, &leverage, &entry, &score, &reason, &st.OpenedAt); err != nil {
			return err
		}
		if st.Invested, err = decimal.NewFromString(invested); err != nil {
			return fmt.Errorf("corrupt invested for %s stage %d: %w", p.ID, st.Index, err)
		}
		if st.Leverage, err = decimal.NewFromString(leverage); err != nil {
			return fmt.Errorf("corrupt leverage for %s stage %d: %w", p.ID, st.Index, err)
		}
		if st.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return fmt.Errorf("corrupt entry_price for %s stage %d: %w", p.ID, st.Index, err)
		}
		if st.SignalScore, err = decimal.NewFromString(score); err != nil {
			return fmt.Errorf("corrupt signal_score for %s stage %d: %w", p.ID, st.Index, err)
		}
		st.Reason = domain.TriggerReason(reason)
		p.Stages = append(p.Stages, st)
	}
	return rows.Err()
}
