package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayConverter lets Array(String) arguments through to the mock.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if dv, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		return dv, nil
	}
	return v, nil
}

func newArchiveMock(t *testing.T, table string) (*ClickHouseDecisionArchive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewClickHouseDecisionArchive(db, table), mock
}

func TestClickHouseDecisionArchiveStore(t *testing.T) {
	archive, mock := newArchiveMock(t, "")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS decision_audit")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, archive.Init(context.Background()))

	rules := models.LatestRules{RulesResult: models.RulesResult{
		EvaluationID: "e1", Symbol: "ETHUSDT", Score: 0.4, Threshold: 0.35,
		Bias: models.BiasLong, Decision: models.DecisionWatch, Confidence: 57,
		Reasons: []string{"score=0.4000"}, VetoApplied: true, VetoReason: "4h net SELL",
		GeneratedAt: 1700000000123,
	}}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_audit")).
		WithArgs("ETHUSDT", "e1", time.UnixMilli(1700000000123).UTC(), 0.4, 0.35,
			"LONG", "WATCH", uint8(57), uint8(1), "4h net SELL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, archive.Store(context.Background(), rules))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseDecisionArchiveQuery(t *testing.T) {
	archive, mock := newArchiveMock(t, "audit")

	at := time.UnixMilli(1700000000500).UTC()
	rows := sqlmock.NewRows([]string{"symbol", "evaluation_id", "generated_at", "score", "threshold", "bias", "decision", "confidence", "veto_applied", "veto_reason", "reasons"}).
		AddRow("ETHUSDT", "e2", at, -0.7, 0.35, "SHORT", "SHORT_SETUP", uint8(100), uint8(0), "", []string{"score=-0.7000"})
	from := at.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit WHERE symbol = ?")).
		WithArgs("ETHUSDT", from, at, 100).
		WillReturnRows(rows)

	got, err := archive.Query(context.Background(), "ETHUSDT", from, at, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DecisionShortSetup, got[0].Decision)
	assert.Equal(t, int64(1700000000500), got[0].GeneratedAt)
	assert.False(t, got[0].VetoApplied)
	require.NoError(t, mock.ExpectationsWereMet())
}
