package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

const defaultArchiveTable = "decision_audit"

// ArchiveSchema is the DDL for the decision audit table. %s is the table name.
const ArchiveSchema = `CREATE TABLE IF NOT EXISTS %s (
    symbol        LowCardinality(String),
    evaluation_id String,
    generated_at  DateTime64(3, 'UTC'),
    score         Float64,
    threshold     Float64,
    bias          LowCardinality(String),
    decision      LowCardinality(String),
    confidence    UInt8,
    veto_applied  UInt8,
    veto_reason   String,
    reasons       Array(String)
) ENGINE = MergeTree
ORDER BY (symbol, generated_at)
TTL toDateTime(generated_at) + INTERVAL 90 DAY`

// ClickHouseDecisionArchive appends every published rules result for offline review.
type ClickHouseDecisionArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseDecisionArchive(db *sql.DB, table string) *ClickHouseDecisionArchive {
	if table == "" {
		table = defaultArchiveTable
	}
	return &ClickHouseDecisionArchive{db: db, table: table}
}

var _ domrepo.DecisionArchive = (*ClickHouseDecisionArchive)(nil)

func (a *ClickHouseDecisionArchive) Init(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(ArchiveSchema, a.table)); err != nil {
		return fmt.Errorf("archive schema: %w", err)
	}
	return nil
}

func (a *ClickHouseDecisionArchive) Store(ctx context.Context, rules models.LatestRules) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, evaluation_id, generated_at, score, threshold, bias, decision, confidence, veto_applied, veto_reason, reasons) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", a.table)
	var veto uint8
	if rules.VetoApplied {
		veto = 1
	}
	_, err := a.db.ExecContext(ctx, q,
		rules.Symbol,
		rules.EvaluationID,
		time.UnixMilli(rules.GeneratedAt).UTC(),
		rules.Score,
		rules.Threshold,
		string(rules.Bias),
		string(rules.Decision),
		uint8(rules.Confidence),
		veto,
		rules.VetoReason,
		rules.Reasons,
	)
	if err != nil {
		return fmt.Errorf("archive store %s: %w", rules.Symbol, err)
	}
	return nil
}

func (a *ClickHouseDecisionArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.RulesResult, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT symbol, evaluation_id, generated_at, score, threshold, bias, decision, confidence, veto_applied, veto_reason, reasons FROM %s WHERE symbol = ? AND generated_at >= ? AND generated_at <= ? ORDER BY generated_at DESC LIMIT ?", a.table)
	rows, err := a.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("archive query %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []models.RulesResult
	for rows.Next() {
		var (
			r          models.RulesResult
			at         time.Time
			bias, dec  string
			confidence uint8
			veto       uint8
		)
		if err := rows.Scan(&r.Symbol, &r.EvaluationID, &at, &r.Score, &r.Threshold, &bias, &dec, &confidence, &veto, &r.VetoReason, &r.Reasons); err != nil {
			return nil, err
		}
		r.GeneratedAt = at.UnixMilli()
		r.Bias = models.Bias(bias)
		r.Decision = models.Decision(dec)
		r.Confidence = int(confidence)
		r.VetoApplied = veto == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *ClickHouseDecisionArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.
func (a *ClickHouseDecisionArchive) Close() error { return nil }

// NopDecisionArchive is used when no archive is configured.
type NopDecisionArchive struct{}

func (NopDecisionArchive) Init(context.Context) error { return nil }

func (NopDecisionArchive) Store(context.Context, models.LatestRules) error { return nil }

func (NopDecisionArchive) Query(context.Context, string, time.Time, time.Time, int) ([]models.RulesResult, error) {
	return nil, nil
}

func (NopDecisionArchive) Health(context.Context) error { return nil }

func (NopDecisionArchive) Close() error { return nil }
