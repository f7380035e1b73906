package models

import (
	"context"
	"database/sql"
)

// * This interface defines all db operations needed by the application
type Database interface {
	// * Run operations
	GetLatestRun(ctx context.Context) (*TrafficRun, error)
	GetRunReport(ctx context.Context, runID int) (TrafficReport, error)
	ListRuns(ctx context.Context, limit int) ([]TrafficRun, error)

	// * Transaction support
	WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
	InsertRunTx(ctx context.Context, tx *sql.Tx, run *TrafficRun) error
	InsertRecordTx(ctx context.Context, tx *sql.Tx, runID int, record *TrafficRecord) error
}
