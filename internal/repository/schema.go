package repository

// Schema definitions for the Peregrine database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    channel TEXT NOT NULL,
    mcc TEXT,
    merchant_id TEXT,
    event_ts TIMESTAMP NOT NULL,
    lat REAL,
    lon REAL,
    device_id TEXT,
    ip TEXT,
    country TEXT,
    state TEXT,
    city TEXT,
    extra TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_account_ts ON events(account_id, event_ts);
`

const schemaDevicesSeen = `
CREATE TABLE IF NOT EXISTS devices_seen (
    account_id TEXT NOT NULL,
    device_fingerprint TEXT NOT NULL,
    first_seen_at TIMESTAMP NOT NULL,
    last_seen_at TIMESTAMP NOT NULL,
    PRIMARY KEY (account_id, device_fingerprint)
);
`

const schemaMerchantBlacklist = `
CREATE TABLE IF NOT EXISTS merchant_blacklist (
    merchant_id TEXT PRIMARY KEY,
    reason TEXT,
    valid_from TIMESTAMP NOT NULL,
    valid_to TIMESTAMP
);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    decision_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    action TEXT NOT NULL,
    risk_score REAL NOT NULL,
    reasons TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_event ON decisions(event_id);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    alert_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    risk_score REAL NOT NULL,
    tags TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_event ON alerts(event_id);
`

const schemaModelScores = `
CREATE TABLE IF NOT EXISTS model_scores (
    score_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    model_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    threshold_used REAL NOT NULL,
    inference_ms INTEGER NOT NULL,
    explain TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_scores_event ON model_scores(event_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvents,
		schemaDevicesSeen,
		schemaMerchantBlacklist,
		schemaDecisions,
		schemaAlerts,
		schemaModelScores,
	}
}
