package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

const upsertMetricQuery = `INSERT INTO queue_metrics (name, component, unit, value, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (name) DO UPDATE
SET component = EXCLUDED.component, unit = EXCLUDED.unit, value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

// DBStorage implements the Repository interface on a PostgreSQL table.
type DBStorage struct {
	db *sql.DB
}

// NewDBStorage opens a pgx backed connection pool for dsn.
func NewDBStorage(dsn string) (*DBStorage, error) {
	dbConnect, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DBStorage{db: dbConnect}, nil
}

func (storage *DBStorage) Close() error {
	return storage.db.Close()
}

// SetMetrics upserts metrics in a single transaction.
func (storage *DBStorage) SetMetrics(ctx context.Context, component models.Component, metrics []models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := storage.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("can't start transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMetricQuery)
	if err != nil {
		return classify(fmt.Errorf("error preparing upsert: %w", err))
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, m.Name, component.GUID, m.Unit, m.Value); err != nil {
			return classify(fmt.Errorf("error saving metric %s: %w", m.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("error committing metrics: %w", err))
	}
	return nil
}

func (storage *DBStorage) GetMetricByName(ctx context.Context, name string) (models.StoredMetric, error) {
	var m models.StoredMetric
	query := "SELECT name, component, unit, value, updated_at FROM queue_metrics WHERE name = $1"
	err := storage.db.QueryRowContext(ctx, query, name).Scan(&m.Name, &m.Component, &m.Unit, &m.Value, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredMetric{}, internalerrors.ErrMetricNotFound
	}
	if err != nil {
		return models.StoredMetric{}, classify(fmt.Errorf("error retrieving metric: %w", err))
	}
	return m, nil
}

func (storage *DBStorage) ListMetrics(ctx context.Context) ([]models.StoredMetric, error) {
	var result []models.StoredMetric
	query := "SELECT name, component, unit, value, updated_at FROM queue_metrics ORDER BY name"
	rows, err := storage.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(fmt.Errorf("error retrieving metrics: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var m models.StoredMetric
		if err := rows.Scan(&m.Name, &m.Component, &m.Unit, &m.Value, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning metric: %w", err)
		}
		result = append(result, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over metrics: %w", err)
	}

	return result, nil
}

func (storage *DBStorage) Ping(ctx context.Context) error {
	err := storage.db.PingContext(ctx)
	if err != nil {
		return classify(fmt.Errorf("database ping failed: %w", err))
	}
	return nil
}

// classify tags connection level failures with ErrSinkUnavailable so callers
// can tell an unreachable database from a rejected statement.
func classify(err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%w: %w", internalerrors.ErrSinkUnavailable, err)
	}
	return err
}

func isConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgErr.Code == pgerrcode.AdminShutdown ||
			pgErr.Code == pgerrcode.CannotConnectNow
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "connection reset by peer")
}
