package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforma/planforma-api/internal/models"
)

func newConflictRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestConflictRepositoryCreateLinksSessions(t *testing.T) {
	db, mock, cleanup := newConflictRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	mock.ExpectExec("INSERT INTO conflicts").
		WithArgs(sqlmock.AnyArg(), "plan-1", string(models.ConflictTrainerClash), models.SeverityDoubleBooking, "trainer double-booked", nil, true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO conflict_sessions").
		WithArgs(sqlmock.AnyArg(), "session-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO conflict_sessions").
		WithArgs(sqlmock.AnyArg(), "session-2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	conflict := &models.Conflict{
		PlanID:      "plan-1",
		Type:        models.ConflictTrainerClash,
		Severity:    models.SeverityDoubleBooking,
		Description: "trainer double-booked",
		Blocking:    true,
	}
	err := repo.Create(context.Background(), db, conflict, []string{"session-1", "session-2"})
	require.NoError(t, err)
	assert.NotEmpty(t, conflict.ID)
	assert.False(t, conflict.DetectedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositoryListByPlanOrdersBySeverity(t *testing.T) {
	db, mock, cleanup := newConflictRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "plan_id", "type", "severity", "description", "slot_id", "blocking", "detected_at", "created_at", "updated_at"}).
		AddRow("c-1", "plan-1", "CONSTRAINT_VIOLATION", 5, "bad weekday", nil, true, now, now, now).
		AddRow("c-2", "plan-1", "EQUIPMENT_OVERBOOK", 2, "pool nearly exhausted", nil, false, now, now, now)
	mock.ExpectQuery(`SELECT id, plan_id, type, severity, description, slot_id, blocking, detected_at, created_at, updated_at FROM conflicts WHERE plan_id = \$1 ORDER BY severity DESC`).
		WithArgs("plan-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT session_id FROM conflict_sessions`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1"))
	mock.ExpectQuery(`SELECT session_id FROM conflict_sessions`).
		WithArgs("c-2").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1").AddRow("session-2"))

	details, err := repo.ListByPlan(context.Background(), "plan-1")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, 5, details[0].Severity)
	assert.True(t, details[0].Blocking)
	assert.Equal(t, []string{"session-1", "session-2"}, details[1].SessionIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictRepositoryDeleteBySession(t *testing.T) {
	db, mock, cleanup := newConflictRepoMock(t)
	defer cleanup()
	repo := NewConflictRepository(db)

	mock.ExpectExec(`DELETE FROM conflicts WHERE id IN`).
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteBySession(context.Background(), db, "session-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
