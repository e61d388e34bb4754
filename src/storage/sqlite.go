package storage

import (
	"database/sql"
	"fmt"
	"time"

	"riskwatch/src/logger"
	"riskwatch/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// SQLiteStore is the default IStore implementation (pure Go driver).
type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			client_id TEXT,
			symbol TEXT,
			quantity REAL,
			PRIMARY KEY (client_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS margin_accounts (
			client_id TEXT PRIMARY KEY,
			loan REAL,
			margin_requirement REAL,
			updated_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS price_cache (
			symbol TEXT PRIMARY KEY,
			price REAL,
			observed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS chart_points (
			symbol TEXT,
			timestamp INTEGER,
			price REAL,
			PRIMARY KEY (symbol, timestamp)
		);`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Positions / accounts
// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetPositions(clientID string) ([]models.MPosition, error) {
	rows, err := d.DB.Query(
		`SELECT client_id, symbol, quantity FROM positions WHERE client_id = ?`, clientID)
	if err != nil {
		return nil, fmt.Errorf("positions query failed: %w", err)
	}
	defer rows.Close()

	var positions []models.MPosition
	for rows.Next() {
		var p models.MPosition
		if err := rows.Scan(&p.ClientID, &p.Symbol, &p.Quantity); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetMarginAccount(clientID string) (*models.MMarginAccount, error) {
	var a models.MMarginAccount
	err := d.DB.QueryRow(
		`SELECT client_id, loan, margin_requirement FROM margin_accounts WHERE client_id = ?`, clientID).
		Scan(&a.ClientID, &a.Loan, &a.MarginRequirement)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("margin account query failed: %w", err)
	}
	return &a, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) UpdateMarginRequirement(clientID string, value float64) error {
	_, err := d.DB.Exec(
		`UPDATE margin_accounts SET margin_requirement = ?, updated_at = ? WHERE client_id = ?`,
		value, time.Now().UTC().Unix(), clientID)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SavePosition(p models.MPosition) error {
	_, err := d.DB.Exec(
		`INSERT INTO positions (client_id, symbol, quantity) VALUES (?, ?, ?)
		 ON CONFLICT (client_id, symbol) DO UPDATE SET quantity = excluded.quantity`,
		p.ClientID, p.Symbol, p.Quantity)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SaveMarginAccount(a models.MMarginAccount) error {
	_, err := d.DB.Exec(
		`INSERT INTO margin_accounts (client_id, loan, margin_requirement, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET loan = excluded.loan,
		 margin_requirement = excluded.margin_requirement, updated_at = excluded.updated_at`,
		a.ClientID, a.Loan, a.MarginRequirement, time.Now().UTC().Unix())
	return err
}

// -----------------------------------------------------------------------------
// Price cache
// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetCachedPrice(symbol string) (models.MPriceCacheEntry, bool, error) {
	var entry models.MPriceCacheEntry
	err := d.DB.QueryRow(
		`SELECT symbol, price, observed_at FROM price_cache WHERE symbol = ?`, symbol).
		Scan(&entry.Symbol, &entry.Price, &entry.ObservedAt)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, fmt.Errorf("price cache query failed: %w", err)
	}
	return entry, true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) UpsertCachedPrice(symbol string, price float64, observedAt time.Time) error {
	_, err := d.DB.Exec(
		`INSERT INTO price_cache (symbol, price, observed_at) VALUES (?, ?, ?)
		 ON CONFLICT (symbol) DO UPDATE SET price = excluded.price, observed_at = excluded.observed_at`,
		symbol, price, observedAt.Unix())
	return err
}

// -----------------------------------------------------------------------------
// Chart history
// -----------------------------------------------------------------------------

func (d *SQLiteStore) SaveChartPoints(points []models.MChartPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO chart_points (symbol, timestamp, price) VALUES (?, ?, ?)
		 ON CONFLICT (symbol, timestamp) DO UPDATE SET price = excluded.price`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, point := range points {
		if _, err := stmt.Exec(point.Symbol, point.Timestamp, point.Price); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetChartPoints(symbol string, fromTs int64) ([]models.MChartPoint, error) {
	rows, err := d.DB.Query(
		`SELECT symbol, timestamp, price FROM chart_points
		 WHERE symbol = ? AND timestamp >= ? ORDER BY timestamp`, symbol, fromTs)
	if err != nil {
		return nil, fmt.Errorf("chart query failed: %w", err)
	}
	defer rows.Close()

	var points []models.MChartPoint
	for rows.Next() {
		var p models.MChartPoint
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Price); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
