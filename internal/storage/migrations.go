package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create position_snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS position_snapshots (
					owner TEXT PRIMARY KEY,
					collateral TEXT NOT NULL,
					debt_principal TEXT NOT NULL,
					accrued_fee TEXT NOT NULL,
					debt_with_fee TEXT NOT NULL,
					collateral_ratio_bps INTEGER NOT NULL,
					health TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_snapshots_health ON position_snapshots(health);
				CREATE INDEX IF NOT EXISTS idx_snapshots_updated_at ON position_snapshots(updated_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create liquidation_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS liquidation_events (
					tx_hash TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					liquidator TEXT NOT NULL,
					repay_amount TEXT NOT NULL,
					seized_amount TEXT NOT NULL,
					bad_debt_delta TEXT NOT NULL,
					block_number INTEGER NOT NULL,
					block_time DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_liquidations_owner ON liquidation_events(owner);
				CREATE INDEX IF NOT EXISTS idx_liquidations_block ON liquidation_events(block_number);
			`,
		},
		{
			Version:     "003",
			Description: "Create oracle_samples table",
			SQL: `
				CREATE TABLE IF NOT EXISTS oracle_samples (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					source TEXT NOT NULL,
					price TEXT NOT NULL,
					staleness_sec INTEGER NOT NULL,
					deviation_bps INTEGER NOT NULL,
					sampled_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_samples_source_time ON oracle_samples(source, sampled_at);
			`,
		},
		{
			Version:     "004",
			Description: "Create keeper_runs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS keeper_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_at DATETIME NOT NULL,
					scanned INTEGER NOT NULL,
					attempted INTEGER NOT NULL,
					succeeded INTEGER NOT NULL,
					failed INTEGER NOT NULL,
					duration_ms INTEGER NOT NULL,
					note TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_keeper_runs_run_at ON keeper_runs(run_at);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create position_snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS position_snapshots (
					owner TEXT PRIMARY KEY,
					collateral TEXT NOT NULL,
					debt_principal TEXT NOT NULL,
					accrued_fee TEXT NOT NULL,
					debt_with_fee TEXT NOT NULL,
					collateral_ratio_bps BIGINT NOT NULL,
					health TEXT NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_snapshots_health ON position_snapshots(health);
				CREATE INDEX IF NOT EXISTS idx_snapshots_updated_at ON position_snapshots(updated_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create liquidation_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS liquidation_events (
					tx_hash TEXT PRIMARY KEY,
					owner TEXT NOT NULL,
					liquidator TEXT NOT NULL,
					repay_amount TEXT NOT NULL,
					seized_amount TEXT NOT NULL,
					bad_debt_delta TEXT NOT NULL,
					block_number BIGINT NOT NULL,
					block_time TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_liquidations_owner ON liquidation_events(owner);
				CREATE INDEX IF NOT EXISTS idx_liquidations_block ON liquidation_events(block_number);
			`,
		},
		{
			Version:     "003",
			Description: "Create oracle_samples table",
			SQL: `
				CREATE TABLE IF NOT EXISTS oracle_samples (
					id BIGSERIAL PRIMARY KEY,
					source TEXT NOT NULL,
					price TEXT NOT NULL,
					staleness_sec BIGINT NOT NULL,
					deviation_bps BIGINT NOT NULL,
					sampled_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_samples_source_time ON oracle_samples(source, sampled_at);
			`,
		},
		{
			Version:     "004",
			Description: "Create keeper_runs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS keeper_runs (
					id BIGSERIAL PRIMARY KEY,
					run_at TIMESTAMPTZ NOT NULL,
					scanned INTEGER NOT NULL,
					attempted INTEGER NOT NULL,
					succeeded INTEGER NOT NULL,
					failed INTEGER NOT NULL,
					duration_ms BIGINT NOT NULL,
					note TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_keeper_runs_run_at ON keeper_runs(run_at);
			`,
		},
	}
}
