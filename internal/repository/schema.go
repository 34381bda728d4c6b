package repository

// migrations run in order on every start and must stay idempotent.
// The statements are valid for both SQLite and PostgreSQL.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS indicators (
		id          TEXT      NOT NULL,
		tenant_id   TEXT      NOT NULL,
		label       TEXT      NOT NULL,
		description TEXT      NOT NULL DEFAULT '',
		expression  TEXT      NOT NULL,
		position    INTEGER   NOT NULL DEFAULT 0,
		enabled     INTEGER   NOT NULL DEFAULT 1,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicators_order ON indicators(tenant_id, position, id)`,
}
