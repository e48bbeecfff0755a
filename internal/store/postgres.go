package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS rules (
        rule_index       BIGINT PRIMARY KEY,
        rule_id          BYTEA NOT NULL,
        asset            TEXT NOT NULL,
        condition        TEXT NOT NULL,
        target_price_usd NUMERIC NOT NULL,
        created_at       BIGINT NOT NULL,
        inserted_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS rule_counter (
        singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE,
        next_index BIGINT NOT NULL,
        CONSTRAINT rule_counter_singleton CHECK (singleton)
    );
    INSERT INTO rule_counter (singleton, next_index)
    VALUES (TRUE, 0)
    ON CONFLICT DO NOTHING;
    CREATE TABLE IF NOT EXISTS notification_log (
        id             BIGSERIAL PRIMARY KEY,
        cycle_ts       TIMESTAMPTZ NOT NULL,
        rule_id        BYTEA NOT NULL,
        asset          TEXT NOT NULL,
        observed_price NUMERIC NOT NULL,
        message        TEXT NOT NULL,
        status         TEXT NOT NULL,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS observations (
        cycle_ts   TIMESTAMPTZ NOT NULL,
        asset      TEXT NOT NULL,
        price      NUMERIC NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (cycle_ts, asset)
    );`

	claimNextIndexSQL = `UPDATE rule_counter
    SET next_index = next_index + 1
    WHERE singleton
    RETURNING next_index - 1;`

	insertRuleSQL = `INSERT INTO rules (
        rule_index, rule_id, asset, condition, target_price_usd, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	getRuleSQL = `SELECT rule_id, asset, condition, target_price_usd, created_at
    FROM rules
    WHERE rule_index = $1;`

	countRulesSQL = `SELECT next_index FROM rule_counter WHERE singleton;`

	listRulesSQL = `SELECT rule_id, asset, condition, target_price_usd, created_at
    FROM rules
    ORDER BY rule_index;`

	insertNotificationSQL = `INSERT INTO notification_log (
        cycle_ts, rule_id, asset, observed_price, message, status
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	listRecentNotificationsSQL = `SELECT
        id, cycle_ts, rule_id, asset, observed_price, message, status, created_at
    FROM notification_log
    ORDER BY created_at DESC
    LIMIT $1;`

	upsertObservationSQL = `INSERT INTO observations (cycle_ts, asset, price)
    VALUES ($1,$2,$3)
    ON CONFLICT (cycle_ts, asset) DO UPDATE
    SET price = EXCLUDED.price;`

	listObservationsBetweenSQL = `SELECT cycle_ts, asset, price, created_at
    FROM observations
    WHERE cycle_ts >= $1
      AND cycle_ts < $2
    ORDER BY cycle_ts, asset;`

	deleteNotificationsBeforeSQL = `DELETE FROM notification_log WHERE created_at < $1;`
)

// Postgres persists rules and audit records in PostgreSQL. The rule table and
// the next-index counter row are updated inside one transaction, so readers
// see a store that is either pre- or post- a given append, never in between.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Postgres) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the rule and audit tables if absent and seeds the
// counter row.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// Append durably records the rule under the next sequential index.
func (s *Postgres) Append(ctx context.Context, r alert.Rule) (uint64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var index int64
	if err := tx.QueryRow(ctx, claimNextIndexSQL).Scan(&index); err != nil {
		return 0, fmt.Errorf("claim rule index: %w", err)
	}

	target := strconv.FormatUint(r.TargetPriceUSD, 10)
	if _, err := tx.Exec(ctx, insertRuleSQL,
		index,
		r.ID[:],
		string(r.Asset),
		string(r.Condition),
		target,
		int64(r.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return uint64(index), nil
}

// Get returns the rule at the given index, or ErrRuleNotFound when the index
// was never assigned. It never silently returns a zero value.
func (s *Postgres) Get(ctx context.Context, index uint64) (alert.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return alert.Rule{}, err
	}

	row := pool.QueryRow(ctx, getRuleSQL, int64(index))
	rule, scanErr := scanRule(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return alert.Rule{}, ErrRuleNotFound
		}
		return alert.Rule{}, scanErr
	}
	return rule, nil
}

// Count returns the total number of appended rules.
func (s *Postgres) Count(ctx context.Context) (uint64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var next int64
	if scanErr := pool.QueryRow(ctx, countRulesSQL).Scan(&next); scanErr != nil {
		return 0, fmt.Errorf("count rules: %w", scanErr)
	}
	return uint64(next), nil
}

// ListAll returns every rule in insertion order.
func (s *Postgres) ListAll(ctx context.Context) ([]alert.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRulesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]alert.Rule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// InsertNotification records a dispatched or failed notification.
func (s *Postgres) InsertNotification(ctx context.Context, rec NotificationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertNotificationSQL,
		rec.CycleTS,
		rec.RuleID[:],
		string(rec.Asset),
		rec.ObservedPrice.String(),
		rec.Message,
		rec.Status,
	); execErr != nil {
		return fmt.Errorf("insert notification: %w", execErr)
	}
	return nil
}

// ListRecentNotifications returns the latest audit rows, newest first.
func (s *Postgres) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list notifications: %w", queryErr)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec      NotificationRecord
			idBytes  []byte
			assetStr string
			priceStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleTS,
			&idBytes,
			&assetStr,
			&priceStr,
			&rec.Message,
			&rec.Status,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		copy(rec.RuleID[:], idBytes)
		rec.Asset = alert.Asset(assetStr)
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observed price: %w", convErr)
		}
		rec.ObservedPrice = price
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// UpsertObservation stores one normalized price read for a cycle.
func (s *Postgres) UpsertObservation(ctx context.Context, rec ObservationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertObservationSQL,
		rec.CycleTS,
		string(rec.Asset),
		rec.Price.String(),
	); execErr != nil {
		return fmt.Errorf("upsert observation: %w", execErr)
	}
	return nil
}

// ListObservationsBetween lists observations within a time window.
func (s *Postgres) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	records := make([]ObservationRecord, 0)
	for rows.Next() {
		var (
			rec      ObservationRecord
			assetStr string
			priceStr string
		)
		if err := rows.Scan(&rec.CycleTS, &assetStr, &priceStr, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Asset = alert.Asset(assetStr)
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation price: %w", convErr)
		}
		rec.Price = price
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteNotificationsBefore prunes historical audit rows. Rules themselves
// are never deleted.
func (s *Postgres) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete notifications before: %w", execErr)
	}
	return nil
}

func scanRule(row pgx.Row) (alert.Rule, error) {
	var (
		idBytes      []byte
		assetStr     string
		conditionStr string
		targetStr    string
		createdAt    int64
	)
	if err := row.Scan(&idBytes, &assetStr, &conditionStr, &targetStr, &createdAt); err != nil {
		return alert.Rule{}, err
	}

	target, err := strconv.ParseUint(targetStr, 10, 64)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("parse target price: %w", err)
	}

	rule := alert.Rule{
		Asset:          alert.Asset(assetStr),
		Condition:      alert.Condition(conditionStr),
		TargetPriceUSD: target,
		CreatedAt:      uint64(createdAt),
	}
	copy(rule.ID[:], idBytes)
	return rule, nil
}

var (
	_ RuleStore  = (*Postgres)(nil)
	_ AuditStore = (*Postgres)(nil)
)
