package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LiteObject/github-traffic-monitor/internal/models"
	"github.com/LiteObject/github-traffic-monitor/pkg/errors"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(url string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, errors.New(
			"DB_CONNECTION_ERROR",
			"Failed to open database connection",
			"Could not initialize database connection",
			err,
			errors.LevelError,
		)
	}

	// * Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// * Verify connection
	if err := db.Ping(); err != nil {
		return nil, errors.New(
			"DB_CONNECTION_ERROR",
			"Failed to verify database connection",
			"Database ping failed",
			err,
			errors.LevelError,
		)
	}

	logger.Info("connected to database successfully")
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Migrate() error {
	driver, err := postgres.WithInstance(p.db, &postgres.Config{})
	if err != nil {
		return errors.New(
			"DB_MIGRATION_ERROR",
			"Failed to create migration driver",
			"Could not initialize migration driver instance",
			err,
			errors.LevelError,
		)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return errors.New(
			"DB_MIGRATION_ERROR",
			"Failed to create migration instance",
			"Could not create migration instance with database",
			err,
			errors.LevelError,
		)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.New(
			"DB_MIGRATION_ERROR",
			"Failed to run migrations",
			"Migration up operation failed",
			err,
			errors.LevelError,
		)
	}

	return nil
}

func (p *PostgresDB) Close() error {
	if err := p.db.Close(); err != nil {
		return errors.New(
			"DB_CONNECTION_ERROR",
			"Failed to close database connection",
			"Error while closing database connection",
			err,
			errors.LevelWarning,
		)
	}
	return nil
}

func (p *PostgresDB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(
			"DB_TRANSACTION_ERROR",
			"Failed to begin transaction",
			"Could not start database transaction",
			err,
			errors.LevelError,
		)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.New(
				"DB_TRANSACTION_ERROR",
				"Transaction failed and rollback encountered error",
				"Transaction error with additional rollback failure",
				fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr),
				errors.LevelError,
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.New(
			"DB_TRANSACTION_ERROR",
			"Failed to commit transaction",
			"Error while committing transaction",
			err,
			errors.LevelError,
		)
	}

	return nil
}

func (p *PostgresDB) InsertRunTx(ctx context.Context, tx *sql.Tx, run *models.TrafficRun) error {
	query := `
		INSERT INTO traffic_runs (
			username, collected_at, repo_count, total_views, total_unique_views,
			total_clones, mean_views, median_views, repos_with_views, repos_with_clones
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	row := tx.QueryRowContext(ctx, query,
		run.Username, run.CollectedAt, run.RepoCount,
		run.Summary.TotalViews, run.Summary.TotalUniqueViews, run.Summary.TotalClones,
		run.Summary.MeanViews, run.Summary.MedianViews,
		run.Summary.ReposWithViews, run.Summary.ReposWithClones,
	)

	if err := row.Scan(&run.ID); err != nil {
		return errors.New(
			"DB_RUN_ERROR",
			"Failed to insert traffic run",
			fmt.Sprintf("Could not insert traffic run for user '%s'", run.Username),
			err,
			errors.LevelError,
		)
	}

	return nil
}

// metricJSON marshals a metric payload for a nullable JSONB column. Absent
// metrics map to NULL so the database keeps the zero/unavailable split.
func metricJSON(present bool, v any) (any, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func (p *PostgresDB) InsertRecordTx(ctx context.Context, tx *sql.Tx, runID int, record *models.TrafficRecord) error {
	insertErr := func(err error) error {
		return errors.New(
			"DB_RECORD_ERROR",
			"Failed to insert traffic record",
			fmt.Sprintf("Could not insert traffic record for repository '%s'", record.RepositoryInfo.Name),
			err,
			errors.LevelError,
		)
	}

	viewsJSON, err := metricJSON(record.Views != nil, record.Views)
	if err != nil {
		return insertErr(err)
	}
	clonesJSON, err := metricJSON(record.Clones != nil, record.Clones)
	if err != nil {
		return insertErr(err)
	}
	referrersJSON, err := metricJSON(record.Referrers != nil, record.Referrers)
	if err != nil {
		return insertErr(err)
	}
	pathsJSON, err := metricJSON(record.PopularPaths != nil, record.PopularPaths)
	if err != nil {
		return insertErr(err)
	}

	query := `
		INSERT INTO traffic_records (
			run_id, name, full_name, description, language, stars, forks,
			repo_created_at, repo_updated_at, views, clones, referrers, popular_paths
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	info := record.RepositoryInfo
	_, err = tx.ExecContext(ctx, query,
		runID, info.Name, info.FullName, info.Description, info.Language,
		info.Stars, info.Forks, info.CreatedAt, info.UpdatedAt,
		viewsJSON, clonesJSON, referrersJSON, pathsJSON,
	)
	if err != nil {
		return insertErr(err)
	}

	return nil
}

func (p *PostgresDB) GetLatestRun(ctx context.Context) (*models.TrafficRun, error) {
	query := `
		SELECT id, username, collected_at, repo_count, total_views, total_unique_views,
			total_clones, mean_views, median_views, repos_with_views, repos_with_clones
		FROM traffic_runs
		ORDER BY collected_at DESC
		LIMIT 1
	`

	var run models.TrafficRun
	err := p.db.QueryRowContext(ctx, query).Scan(
		&run.ID, &run.Username, &run.CollectedAt, &run.RepoCount,
		&run.Summary.TotalViews, &run.Summary.TotalUniqueViews, &run.Summary.TotalClones,
		&run.Summary.MeanViews, &run.Summary.MedianViews,
		&run.Summary.ReposWithViews, &run.Summary.ReposWithClones,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(
				"DB_RUN_NOT_FOUND",
				"No traffic runs recorded yet",
				"No collection run has completed and been persisted",
				err,
				errors.LevelInfo,
			)
		}
		return nil, errors.New(
			"DB_RUN_ERROR",
			"Failed to fetch latest traffic run",
			"Could not read the most recent traffic run",
			err,
			errors.LevelError,
		)
	}

	return &run, nil
}

func (p *PostgresDB) GetRunReport(ctx context.Context, runID int) (models.TrafficReport, error) {
	query := `
		SELECT name, full_name, description, language, stars, forks,
			repo_created_at, repo_updated_at, views, clones, referrers, popular_paths
		FROM traffic_records
		WHERE run_id = $1
	`

	rows, err := p.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, errors.New(
			"DB_RECORD_ERROR",
			"Failed to query traffic records",
			fmt.Sprintf("Could not fetch traffic records for run '%d'", runID),
			err,
			errors.LevelError,
		)
	}
	defer rows.Close()

	report := make(models.TrafficReport)
	for rows.Next() {
		var record models.TrafficRecord
		var viewsJSON, clonesJSON, referrersJSON, pathsJSON []byte

		info := &record.RepositoryInfo
		err := rows.Scan(
			&info.Name, &info.FullName, &info.Description, &info.Language,
			&info.Stars, &info.Forks, &info.CreatedAt, &info.UpdatedAt,
			&viewsJSON, &clonesJSON, &referrersJSON, &pathsJSON,
		)
		if err != nil {
			return nil, errors.New(
				"DB_RECORD_ERROR",
				"Failed to scan traffic record",
				"Error while scanning traffic record row",
				err,
				errors.LevelError,
			)
		}

		if err := unmarshalRecordMetrics(&record, viewsJSON, clonesJSON, referrersJSON, pathsJSON); err != nil {
			return nil, err
		}

		report[info.Name] = &record
	}

	if err := rows.Err(); err != nil {
		return nil, errors.New(
			"DB_RECORD_ERROR",
			"Failed to process traffic records",
			"Error while processing traffic record rows",
			err,
			errors.LevelError,
		)
	}

	return report, nil
}

func unmarshalRecordMetrics(record *models.TrafficRecord, viewsJSON, clonesJSON, referrersJSON, pathsJSON []byte) error {
	fail := func(metric string, err error) error {
		return errors.New(
			"DB_RECORD_ERROR",
			"Failed to decode stored traffic metric",
			fmt.Sprintf("Could not decode %s for repository '%s'", metric, record.RepositoryInfo.Name),
			err,
			errors.LevelError,
		)
	}

	if len(viewsJSON) > 0 {
		record.Views = &models.ViewsMetric{}
		if err := json.Unmarshal(viewsJSON, record.Views); err != nil {
			return fail("views", err)
		}
	}
	if len(clonesJSON) > 0 {
		record.Clones = &models.ClonesMetric{}
		if err := json.Unmarshal(clonesJSON, record.Clones); err != nil {
			return fail("clones", err)
		}
	}
	if len(referrersJSON) > 0 {
		record.Referrers = []models.ReferrerMetric{}
		if err := json.Unmarshal(referrersJSON, &record.Referrers); err != nil {
			return fail("referrers", err)
		}
	}
	if len(pathsJSON) > 0 {
		record.PopularPaths = []models.PathMetric{}
		if err := json.Unmarshal(pathsJSON, &record.PopularPaths); err != nil {
			return fail("popular paths", err)
		}
	}

	return nil
}

func (p *PostgresDB) ListRuns(ctx context.Context, limit int) ([]models.TrafficRun, error) {
	query := `
		SELECT id, username, collected_at, repo_count, total_views, total_unique_views,
			total_clones, mean_views, median_views, repos_with_views, repos_with_clones
		FROM traffic_runs
		ORDER BY collected_at DESC
		LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.New(
			"DB_RUN_ERROR",
			"Failed to query traffic runs",
			"Could not fetch the list of traffic runs",
			err,
			errors.LevelError,
		)
	}
	defer rows.Close()

	var runs []models.TrafficRun
	for rows.Next() {
		var run models.TrafficRun
		err := rows.Scan(
			&run.ID, &run.Username, &run.CollectedAt, &run.RepoCount,
			&run.Summary.TotalViews, &run.Summary.TotalUniqueViews, &run.Summary.TotalClones,
			&run.Summary.MeanViews, &run.Summary.MedianViews,
			&run.Summary.ReposWithViews, &run.Summary.ReposWithClones,
		)
		if err != nil {
			return nil, errors.New(
				"DB_RUN_ERROR",
				"Failed to scan traffic run",
				"Error while scanning traffic run row",
				err,
				errors.LevelError,
			)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.New(
			"DB_RUN_ERROR",
			"Failed to process traffic runs",
			"Error while processing traffic run rows",
			err,
			errors.LevelError,
		)
	}

	return runs, nil
}
