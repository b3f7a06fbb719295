package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes the database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// UpsertSnapshot writes the last-known state for an owner
func (s *PostgreSQLStorage) UpsertSnapshot(ctx context.Context, snapshot *models.PositionSnapshot) error {
	query := `
		INSERT INTO position_snapshots
		(owner, collateral, debt_principal, accrued_fee, debt_with_fee, collateral_ratio_bps, health, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner) DO UPDATE SET
			collateral = EXCLUDED.collateral,
			debt_principal = EXCLUDED.debt_principal,
			accrued_fee = EXCLUDED.accrued_fee,
			debt_with_fee = EXCLUDED.debt_with_fee,
			collateral_ratio_bps = EXCLUDED.collateral_ratio_bps,
			health = EXCLUDED.health,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		utils.NormalizeAddress(snapshot.Owner), snapshot.Collateral, snapshot.DebtPrincipal,
		snapshot.AccruedFee, snapshot.DebtWithFee, snapshot.CollateralRatioBps,
		string(snapshot.Health), snapshot.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert snapshot", err.Error())
	}
	return nil
}

// GetSnapshot retrieves a snapshot by owner, nil if absent
func (s *PostgreSQLStorage) GetSnapshot(ctx context.Context, owner string) (*models.PositionSnapshot, error) {
	query := `
		SELECT owner, collateral, debt_principal, accrued_fee, debt_with_fee, collateral_ratio_bps, health, updated_at
		FROM position_snapshots WHERE owner = $1
	`

	row := s.db.QueryRowContext(ctx, query, utils.NormalizeAddress(owner))
	snapshot, err := scanSnapshot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get snapshot", err.Error())
	}
	return snapshot, nil
}

// ListSnapshots retrieves snapshots matching the filter, newest first
func (s *PostgreSQLStorage) ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]*models.PositionSnapshot, error) {
	query := `
		SELECT owner, collateral, debt_principal, accrued_fee, debt_with_fee, collateral_ratio_bps, health, updated_at
		FROM position_snapshots
	`
	args := []interface{}{}
	argIndex := 1

	if filter.Health != nil {
		query += fmt.Sprintf(" WHERE health = $%d", argIndex)
		args = append(args, string(*filter.Health))
		argIndex++
	}

	query += " ORDER BY updated_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list snapshots", err.Error())
	}
	defer rows.Close()

	var snapshots []*models.PositionSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan snapshot", err.Error())
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// ListOwners returns every owner with a stored snapshot
func (s *PostgreSQLStorage) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT owner FROM position_snapshots")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list owners", err.Error())
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan owner", err.Error())
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// UpsertLiquidation writes a liquidation row keyed by tx hash
func (s *PostgreSQLStorage) UpsertLiquidation(ctx context.Context, event *models.LiquidationEvent) error {
	query := `
		INSERT INTO liquidation_events
		(tx_hash, owner, liquidator, repay_amount, seized_amount, bad_debt_delta, block_number, block_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO UPDATE SET
			owner = EXCLUDED.owner,
			liquidator = EXCLUDED.liquidator,
			repay_amount = EXCLUDED.repay_amount,
			seized_amount = EXCLUDED.seized_amount,
			bad_debt_delta = EXCLUDED.bad_debt_delta,
			block_number = EXCLUDED.block_number,
			block_time = EXCLUDED.block_time
	`

	_, err := s.db.ExecContext(ctx, query,
		event.TxHash, utils.NormalizeAddress(event.Owner), utils.NormalizeAddress(event.Liquidator),
		event.RepayAmount, event.SeizedAmount, event.BadDebtDelta,
		event.BlockNumber, event.BlockTime)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert liquidation", err.Error())
	}
	return nil
}

// GetLiquidation retrieves a liquidation by tx hash, nil if absent
func (s *PostgreSQLStorage) GetLiquidation(ctx context.Context, txHash string) (*models.LiquidationEvent, error) {
	query := `
		SELECT tx_hash, owner, liquidator, repay_amount, seized_amount, bad_debt_delta, block_number, block_time
		FROM liquidation_events WHERE tx_hash = $1
	`

	row := s.db.QueryRowContext(ctx, query, txHash)
	event, err := scanLiquidation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get liquidation", err.Error())
	}
	return event, nil
}

// ListLiquidations retrieves liquidations, newest block first
func (s *PostgreSQLStorage) ListLiquidations(ctx context.Context, filter models.LiquidationFilter) ([]*models.LiquidationEvent, error) {
	query := `
		SELECT tx_hash, owner, liquidator, repay_amount, seized_amount, bad_debt_delta, block_number, block_time
		FROM liquidation_events
	`
	args := []interface{}{}
	argIndex := 1

	if filter.Owner != nil {
		query += fmt.Sprintf(" WHERE owner = $%d", argIndex)
		args = append(args, utils.NormalizeAddress(*filter.Owner))
		argIndex++
	}

	query += " ORDER BY block_number DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list liquidations", err.Error())
	}
	defer rows.Close()

	var events []*models.LiquidationEvent
	for rows.Next() {
		event, err := scanLiquidation(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan liquidation", err.Error())
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveOracleSample appends a price sample
func (s *PostgreSQLStorage) SaveOracleSample(ctx context.Context, sample *models.OracleSample) error {
	query := `
		INSERT INTO oracle_samples (source, price, staleness_sec, deviation_bps, sampled_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		sample.Source, sample.Price, sample.StalenessSec, sample.DeviationBps, sample.SampledAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save oracle sample", err.Error())
	}
	return nil
}

// ListSpotSamples returns spot samples taken at or after since, newest first
func (s *PostgreSQLStorage) ListSpotSamples(ctx context.Context, since time.Time, limit int) ([]*models.OracleSample, error) {
	if limit <= 0 {
		limit = 120
	}

	query := `
		SELECT id, source, price, staleness_sec, deviation_bps, sampled_at
		FROM oracle_samples
		WHERE source = $1 AND sampled_at >= $2
		ORDER BY sampled_at DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, models.SampleSourceSpot, since, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list spot samples", err.Error())
	}
	defer rows.Close()

	var samples []*models.OracleSample
	for rows.Next() {
		sample := &models.OracleSample{}
		if err := rows.Scan(&sample.ID, &sample.Source, &sample.Price,
			&sample.StalenessSec, &sample.DeviationBps, &sample.SampledAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan sample", err.Error())
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// LatestSample returns the most recent sample for a source, nil if none
func (s *PostgreSQLStorage) LatestSample(ctx context.Context, source string) (*models.OracleSample, error) {
	query := `
		SELECT id, source, price, staleness_sec, deviation_bps, sampled_at
		FROM oracle_samples WHERE source = $1
		ORDER BY sampled_at DESC LIMIT 1
	`

	sample := &models.OracleSample{}
	err := s.db.QueryRowContext(ctx, query, source).Scan(&sample.ID, &sample.Source,
		&sample.Price, &sample.StalenessSec, &sample.DeviationBps, &sample.SampledAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest sample", err.Error())
	}
	return sample, nil
}

// SaveKeeperRun appends one keeper tick audit row
func (s *PostgreSQLStorage) SaveKeeperRun(ctx context.Context, run *models.KeeperRun) error {
	query := `
		INSERT INTO keeper_runs (run_at, scanned, attempted, succeeded, failed, duration_ms, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.RunAt, run.Scanned, run.Attempted, run.Succeeded, run.Failed, run.DurationMs, run.Note)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save keeper run", err.Error())
	}
	return nil
}

// ListKeeperRuns returns the most recent keeper runs
func (s *PostgreSQLStorage) ListKeeperRuns(ctx context.Context, limit int) ([]*models.KeeperRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, run_at, scanned, attempted, succeeded, failed, duration_ms, note
		FROM keeper_runs ORDER BY run_at DESC LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list keeper runs", err.Error())
	}
	defer rows.Close()

	var runs []*models.KeeperRun
	for rows.Next() {
		run := &models.KeeperRun{}
		var note sql.NullString
		if err := rows.Scan(&run.ID, &run.RunAt, &run.Scanned, &run.Attempted,
			&run.Succeeded, &run.Failed, &run.DurationMs, &note); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan keeper run", err.Error())
		}
		if note.Valid {
			run.Note = &note.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetStorageStats returns row counts and latest timestamps
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM position_snapshots", &stats.TotalSnapshots},
		{"SELECT COUNT(*) FROM liquidation_events", &stats.TotalLiquidations},
		{"SELECT COUNT(*) FROM oracle_samples", &stats.TotalSamples},
		{"SELECT COUNT(*) FROM keeper_runs", &stats.TotalKeeperRuns},
	}

	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count rows", err.Error())
		}
	}

	var latestSnapshot, latestRun sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM position_snapshots").Scan(&latestSnapshot); err == nil && latestSnapshot.Valid {
		stats.LatestSnapshotAt = &latestSnapshot.Time
	}
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(run_at) FROM keeper_runs").Scan(&latestRun); err == nil && latestRun.Valid {
		stats.LatestRunAt = &latestRun.Time
	}

	return stats, nil
}
