package repository

// Schema definitions for Kestrel's database.
// Compatible with both SQLite and PostgreSQL.

const schemaResults = `
CREATE TABLE IF NOT EXISTS results (
    case_id TEXT PRIMARY KEY,
    decision TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    metrics TEXT NOT NULL,
    conditions TEXT NOT NULL,
    reasons TEXT NOT NULL,
    memo TEXT NOT NULL,
    raw_input TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    engine_version TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_decision ON results(decision);
CREATE INDEX IF NOT EXISTS idx_results_generated ON results(generated_at);
`

const schemaOverlayRules = `
CREATE TABLE IF NOT EXISTS overlay_rules (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    outcome TEXT NOT NULL,
    message TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_overlay_rules_enabled ON overlay_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaResults,
		schemaOverlayRules,
	}
}
