// Package sqldb stores host alias mappings in a SQL database (SQLite or PostgreSQL).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	tableAliases  = "onion_aliases"
	tableSettings = "onion_settings"

	settingDisabled        = "is_disabled"
	settingDisabledMessage = "disabled_message"
)

// Config holds the database connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteDSN returns a DSN for a SQLite file with WAL enabled.
func SQLiteDSN(path string) string {
	return path + "?_journal_mode=WAL&_sync=NORMAL&_busy_timeout=5000&_foreign_keys=true"
}

// Backend implements mapping.Backend. Queries are built with squirrel and
// scanned with sqlx.
type Backend struct {
	db     *sqlx.DB
	sb     squirrel.StatementBuilderType
	logger logger.Logger
}

type aliasRow struct {
	Alias     string `db:"alias"`
	TenantID  int64  `db:"tenant_id"`
	CreatedAt int64  `db:"created_at"` // unix nanos
}

func (r aliasRow) entry() domain.MappingEntry {
	return domain.MappingEntry{
		Alias:     r.Alias,
		TenantID:  r.TenantID,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Backend, error) {
	var ph squirrel.PlaceholderFormat
	switch cfg.Driver {
	case DriverSQLite:
		ph = squirrel.Question
	case DriverPostgres:
		ph = squirrel.Dollar
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer at a time; SQLite serializes anyway.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	b := &Backend{
		db:     db,
		sb:     squirrel.StatementBuilder.PlaceholderFormat(ph),
		logger: log,
	}

	if err := b.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("connected to sql database", logger.String("driver", cfg.Driver))
	return b, nil
}

// Migrate creates the tables if needed.
func (b *Backend) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + tableAliases + ` (
			alias TEXT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_onion_aliases_tenant ON ` + tableAliases + `(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS ` + tableSettings + ` (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Get(ctx context.Context, alias string) (domain.MappingEntry, bool, error) {
	query, args, err := b.sb.Select("alias", "tenant_id", "created_at").
		From(tableAliases).
		Where(squirrel.Eq{"alias": alias}).
		ToSql()
	if err != nil {
		return domain.MappingEntry{}, false, fmt.Errorf("failed to build query: %w", err)
	}

	var row aliasRow
	err = b.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MappingEntry{}, false, nil
	}
	if err != nil {
		return domain.MappingEntry{}, false, fmt.Errorf("failed to get alias: %w", err)
	}
	return row.entry(), true, nil
}

func (b *Backend) List(ctx context.Context) ([]domain.MappingEntry, error) {
	query, args, err := b.sb.Select("alias", "tenant_id", "created_at").
		From(tableAliases).
		OrderBy("created_at", "alias").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []aliasRow
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}

	entries := make([]domain.MappingEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (b *Backend) Put(ctx context.Context, entry domain.MappingEntry) error {
	query, args, err := b.sb.Insert(tableAliases).
		Columns("alias", "tenant_id", "created_at").
		Values(entry.Alias, entry.TenantID, entry.CreatedAt.UnixNano()).
		Suffix("ON CONFLICT(alias) DO UPDATE SET tenant_id = excluded.tenant_id, created_at = excluded.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	return nil
}

func (b *Backend) DeleteTenant(ctx context.Context, tenantID int64) (int, error) {
	query, args, err := b.sb.Delete(tableAliases).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete aliases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted aliases: %w", err)
	}
	return int(n), nil
}

func (b *Backend) ServiceState(ctx context.Context) (domain.ServiceState, error) {
	query, args, err := b.sb.Select("key", "value").
		From(tableSettings).
		Where(squirrel.Eq{"key": []string{settingDisabled, settingDisabledMessage}}).
		ToSql()
	if err != nil {
		return domain.ServiceState{}, fmt.Errorf("failed to build query: %w", err)
	}

	var rows []settingRow
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.ServiceState{}, fmt.Errorf("failed to get service state: %w", err)
	}

	state := domain.DefaultServiceState()
	for _, r := range rows {
		switch r.Key {
		case settingDisabled:
			disabled, err := strconv.ParseBool(r.Value)
			if err != nil {
				return domain.ServiceState{}, fmt.Errorf("invalid %s setting %q: %w", settingDisabled, r.Value, err)
			}
			state.Disabled = disabled
		case settingDisabledMessage:
			state.DisabledMessage = r.Value
		}
	}
	return state, nil
}

func (b *Backend) SetServiceState(ctx context.Context, state domain.ServiceState) error {
	query, args, err := b.sb.Insert(tableSettings).
		Columns("key", "value").
		Values(settingDisabled, strconv.FormatBool(state.Disabled)).
		Values(settingDisabledMessage, state.DisabledMessage).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save service state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit service state: %w", err)
	}
	return nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
