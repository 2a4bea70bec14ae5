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

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryCreateDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "plan-1", "Go basics", nil, nil, nil, 120, string(models.SessionStatusDraft), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{PlanID: "plan-1", Title: "Go basics", DurationMinutes: 120}
	err := repo.Create(context.Background(), db, session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusDraft, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryAssignResourcesKeepsExisting(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	trainerID := "trainer-1"
	roomID := "room-1"
	mock.ExpectExec(`UPDATE sessions\s+SET trainer_id = COALESCE\(trainer_id, \$2\), room_id = COALESCE\(room_id, \$3\)`).
		WithArgs("session-1", &trainerID, &roomID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AssignResources(context.Background(), db, "session-1", &trainerID, &roomID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListTrainerOverlaps(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("session-2")
	mock.ExpectQuery(`SELECT DISTINCT s.id FROM sessions s`).
		WithArgs("trainer-1", date, "10:00", "12:00", "session-1").
		WillReturnRows(rows)

	ids, err := repo.ListTrainerOverlaps(context.Background(), "trainer-1", date, "10:00", "12:00", "session-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"session-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCountEquipmentOverlaps(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT s.id\) FROM sessions s`).
		WithArgs("eq-1", date, "08:00", "10:00", "session-9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountEquipmentOverlaps(context.Background(), "eq-1", date, "08:00", "10:00", "session-9")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryReplaceEquipment(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM session_equipment").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO session_equipment").
		WithArgs("session-1", "eq-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO session_equipment").
		WithArgs("session-1", "eq-2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.ReplaceEquipment(context.Background(), db, "session-1", []string{"eq-1", "eq-2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
