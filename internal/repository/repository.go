// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/peregrine/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvent stores an ingested event. Duplicate event ids are tolerated:
// delivery is at-least-once and the first write wins.
func (r *SQLRepository) InsertEvent(ctx context.Context, evt *domain.TransactionEvent) error {
	if evt.EventID == "" || evt.AccountID == "" {
		return fmt.Errorf("%w: eventID and accountID are required", ErrInvalidInput)
	}

	extra, _ := json.Marshal(evt.Extra)

	query := `
		INSERT INTO events (
			event_id, account_id, user_id, amount, currency, channel,
			mcc, merchant_id, event_ts, lat, lon, device_id,
			ip, country, state, city, extra, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		evt.EventID, evt.AccountID, evt.UserID,
		evt.Amount, evt.Currency, evt.Channel,
		nullString(evt.MCC), nullString(evt.MerchantID),
		evt.Timestamp.UTC(), evt.Lat, evt.Lon,
		nullString(evt.DeviceID), nullString(evt.IP),
		nullString(evt.Country), nullString(evt.State), nullString(evt.City),
		string(extra), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert event: %v", domain.ErrPersistence, err)
	}
	return nil
}

// UpsertDeviceSeen records a device fingerprint for an account. Empty
// device ids are skipped.
func (r *SQLRepository) UpsertDeviceSeen(ctx context.Context, accountID, deviceID string) error {
	if deviceID == "" {
		return nil
	}
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO devices_seen (account_id, device_fingerprint, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, device_fingerprint)
		DO UPDATE SET last_seen_at = excluded.last_seen_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), accountID, deviceID, now, now)
	if err != nil {
		return fmt.Errorf("%w: upsert device: %v", domain.ErrPersistence, err)
	}
	return nil
}

// RecentEvents returns an account's events with event_ts >= since, ordered
// ascending by timestamp.
func (r *SQLRepository) RecentEvents(ctx context.Context, accountID string, since time.Time) ([]domain.EventHistoryRecord, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT event_ts, amount, lat, lon, device_id, merchant_id, channel
		FROM events
		WHERE account_id = ? AND event_ts >= ?
		ORDER BY event_ts ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.EventHistoryRecord
	for rows.Next() {
		var rec domain.EventHistoryRecord
		var deviceID, merchantID, channel sql.NullString
		if err := rows.Scan(
			&rec.Timestamp, &rec.Amount, &rec.Lat, &rec.Lon,
			&deviceID, &merchantID, &channel,
		); err != nil {
			return nil, err
		}
		rec.DeviceID = deviceID.String
		rec.MerchantID = merchantID.String
		rec.Channel = channel.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

// IsDeviceSeen reports whether the device fingerprint is known for the
// account. False for empty device ids.
func (r *SQLRepository) IsDeviceSeen(ctx context.Context, accountID, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, nil
	}

	query := `SELECT 1 FROM devices_seen WHERE account_id = ? AND device_fingerprint = ?`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsMerchantBlacklisted reports whether an active block rule matches the
// merchant: a row whose valid_to is NULL or in the future. False for
// empty merchant ids.
func (r *SQLRepository) IsMerchantBlacklisted(ctx context.Context, merchantID string) (bool, error) {
	if merchantID == "" {
		return false, nil
	}

	query := `
		SELECT 1 FROM merchant_blacklist
		WHERE merchant_id = ? AND (valid_to IS NULL OR valid_to > ?)
	`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, time.Now().UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertBlacklist activates or deactivates a merchant block rule.
// Activation clears valid_to; deactivation sets it to now.
func (r *SQLRepository) UpsertBlacklist(ctx context.Context, merchantID string, active bool, reason string) error {
	if merchantID == "" {
		return fmt.Errorf("%w: merchantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	var validTo any
	if !active {
		validTo = now
	}

	query := `
		INSERT INTO merchant_blacklist (merchant_id, reason, valid_from, valid_to)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (merchant_id)
		DO UPDATE SET reason = excluded.reason, valid_to = excluded.valid_to
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), merchantID, nullString(reason), now, validTo)
	if err != nil {
		return fmt.Errorf("%w: upsert blacklist: %v", domain.ErrPersistence, err)
	}
	return nil
}

// InsertDecision persists a decision outcome. Retrying with the same
// decision id is a no-op.
func (r *SQLRepository) InsertDecision(ctx context.Context, dec *domain.DecisionOutcome) error {
	if dec.DecisionID == "" || dec.EventID == "" {
		return fmt.Errorf("%w: decisionID and eventID are required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(dec.Reasons)

	query := `
		INSERT INTO decisions (decision_id, event_id, action, risk_score, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (decision_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		dec.DecisionID, dec.EventID, dec.Action, dec.RiskScore,
		string(reasons), dec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert decision: %v", domain.ErrPersistence, err)
	}
	return nil
}

// InsertAlerts persists derived alerts. Retrying with the same alert ids
// is a no-op.
func (r *SQLRepository) InsertAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	query := `
		INSERT INTO alerts (alert_id, event_id, severity, title, description, risk_score, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (alert_id) DO NOTHING
	`

	for _, a := range alerts {
		tags, _ := json.Marshal(a.Tags)
		_, err := r.db.ExecContext(ctx, r.rebind(query),
			a.AlertID, a.EventID, a.Severity, a.Title,
			a.Description, a.RiskScore, string(tags), a.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert alert: %v", domain.ErrPersistence, err)
		}
	}
	return nil
}

// GetDecisionByEvent returns the most recent decision for an event.
func (r *SQLRepository) GetDecisionByEvent(ctx context.Context, eventID string) (*domain.DecisionOutcome, error) {
	query := `
		SELECT decision_id, event_id, action, risk_score, reasons, created_at
		FROM decisions
		WHERE event_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var dec domain.DecisionOutcome
	var reasons string
	err := r.db.QueryRowContext(ctx, r.rebind(query), eventID).Scan(
		&dec.DecisionID, &dec.EventID, &dec.Action,
		&dec.RiskScore, &reasons, &dec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if reasons != "" {
		json.Unmarshal([]byte(reasons), &dec.Reasons)
	}
	return &dec, nil
}

// InsertModelScore persists one model inference result.
func (r *SQLRepository) InsertModelScore(ctx context.Context, score *domain.ModelScore) error {
	if score.EventID == "" || score.ModelID == "" {
		return fmt.Errorf("%w: eventID and modelID are required", ErrInvalidInput)
	}

	explain, _ := json.Marshal(score.Explain)

	query := `
		INSERT INTO model_scores (score_id, event_id, model_id, risk_score, threshold_used, inference_ms, explain, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		newScoreID(), score.EventID, score.ModelID,
		score.RiskScore, score.Threshold, score.InferenceMs,
		string(explain), score.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert model score: %v", domain.ErrPersistence, err)
	}
	return nil
}

// LatestModelScore returns the newest model score for an event, or
// ErrNotFound when no score exists.
func (r *SQLRepository) LatestModelScore(ctx context.Context, eventID string) (*domain.ModelScore, error) {
	query := `
		SELECT event_id, model_id, risk_score, threshold_used, inference_ms, explain, created_at
		FROM model_scores
		WHERE event_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var score domain.ModelScore
	var explain sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), eventID).Scan(
		&score.EventID, &score.ModelID, &score.RiskScore,
		&score.Threshold, &score.InferenceMs, &explain, &score.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if explain.String != "" {
		json.Unmarshal([]byte(explain.String), &score.Explain)
	}
	return &score, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func newScoreID() string {
	return uuid.New().String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
