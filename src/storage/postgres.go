package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"riskwatch/src/logger"
	"riskwatch/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresStore is the production IStore implementation. Each binary gets its
// own schema, named after the executable.
type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresStore{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) table(name string) string {
	return fmt.Sprintf("%q.%q", d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) createTables() error {
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			client_id TEXT,
			symbol TEXT,
			quantity DOUBLE PRECISION,
			PRIMARY KEY (client_id, symbol)
		)`, d.table("positions")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			client_id TEXT PRIMARY KEY,
			loan DOUBLE PRECISION,
			margin_requirement DOUBLE PRECISION,
			updated_at BIGINT
		)`, d.table("margin_accounts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT PRIMARY KEY,
			price DOUBLE PRECISION,
			observed_at BIGINT
		)`, d.table("price_cache")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT,
			timestamp BIGINT,
			price DOUBLE PRECISION,
			PRIMARY KEY (symbol, timestamp)
		)`, d.table("chart_points")),
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

func (d *PostgresStore) GetPositions(clientID string) ([]models.MPosition, error) {
	rows, err := d.DB.Query(fmt.Sprintf(
		`SELECT client_id, symbol, quantity FROM %s WHERE client_id = $1`, d.table("positions")), clientID)
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

func (d *PostgresStore) GetMarginAccount(clientID string) (*models.MMarginAccount, error) {
	var a models.MMarginAccount
	err := d.DB.QueryRow(fmt.Sprintf(
		`SELECT client_id, loan, margin_requirement FROM %s WHERE client_id = $1`, d.table("margin_accounts")), clientID).
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

func (d *PostgresStore) UpdateMarginRequirement(clientID string, value float64) error {
	_, err := d.DB.Exec(fmt.Sprintf(
		`UPDATE %s SET margin_requirement = $1, updated_at = $2 WHERE client_id = $3`, d.table("margin_accounts")),
		value, time.Now().UTC().Unix(), clientID)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) SavePosition(p models.MPosition) error {
	_, err := d.DB.Exec(fmt.Sprintf(
		`INSERT INTO %s (client_id, symbol, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (client_id, symbol) DO UPDATE SET quantity = EXCLUDED.quantity`, d.table("positions")),
		p.ClientID, p.Symbol, p.Quantity)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) SaveMarginAccount(a models.MMarginAccount) error {
	_, err := d.DB.Exec(fmt.Sprintf(
		`INSERT INTO %s (client_id, loan, margin_requirement, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id) DO UPDATE SET loan = EXCLUDED.loan,
		 margin_requirement = EXCLUDED.margin_requirement, updated_at = EXCLUDED.updated_at`, d.table("margin_accounts")),
		a.ClientID, a.Loan, a.MarginRequirement, time.Now().UTC().Unix())
	return err
}

// -----------------------------------------------------------------------------
// Price cache
// -----------------------------------------------------------------------------

func (d *PostgresStore) GetCachedPrice(symbol string) (models.MPriceCacheEntry, bool, error) {
	var entry models.MPriceCacheEntry
	err := d.DB.QueryRow(fmt.Sprintf(
		`SELECT symbol, price, observed_at FROM %s WHERE symbol = $1`, d.table("price_cache")), symbol).
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

func (d *PostgresStore) UpsertCachedPrice(symbol string, price float64, observedAt time.Time) error {
	_, err := d.DB.Exec(fmt.Sprintf(
		`INSERT INTO %s (symbol, price, observed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (symbol) DO UPDATE SET price = EXCLUDED.price, observed_at = EXCLUDED.observed_at`, d.table("price_cache")),
		symbol, price, observedAt.Unix())
	return err
}

// -----------------------------------------------------------------------------
// Chart history
// -----------------------------------------------------------------------------

func (d *PostgresStore) SaveChartPoints(points []models.MChartPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (symbol, timestamp, price) VALUES ($1, $2, $3)
		 ON CONFLICT (symbol, timestamp) DO UPDATE SET price = EXCLUDED.price`, d.table("chart_points")))
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

func (d *PostgresStore) GetChartPoints(symbol string, fromTs int64) ([]models.MChartPoint, error) {
	rows, err := d.DB.Query(fmt.Sprintf(
		`SELECT symbol, timestamp, price FROM %s
		 WHERE symbol = $1 AND timestamp >= $2 ORDER BY timestamp`, d.table("chart_points")), symbol, fromTs)
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

func (d *PostgresStore) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
