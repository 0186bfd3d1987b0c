package postgres

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boost-marketplace/internal/domain"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRepository(mock, logger), mock
}

func TestRunMigrations(t *testing.T) {
	repo, mock := newMockRepo(t)
	for range migrations {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, repo.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow("u1", "u1@example.com", "Ana", "booster", created))

	p, err := repo.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBooster, p.Role)
	assert.Equal(t, "Ana", p.Name)
	assert.True(t, created.Equal(p.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureProfile(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	profile := domain.Profile{ID: "u1", Email: "u1@example.com", Name: "Ana", Role: domain.RoleUser, CreatedAt: created}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs("u1", "u1@example.com", "Ana", "user", created).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow("u1", "u1@example.com", "Ana", "booster", created))

	p, err := repo.EnsureProfile(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBooster, p.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureProfile_ConcurrentInsertReloads(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	profile := domain.Profile{ID: "u1", Email: "u1@example.com", Name: "Ana", Role: domain.RoleUser, CreatedAt: created}

	// The other request's insert committed after this statement's snapshot.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs("u1", "u1@example.com", "Ana", "user", created).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow("u1", "u1@example.com", "Ana", "user", created))

	p, err := repo.EnsureProfile(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}))

	_, err := repo.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestListProfiles(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles ORDER BY created_at DESC")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow("u2", "b@example.com", "B", "admin", now).
			AddRow("u1", "a@example.com", "A", "user", now.Add(-time.Hour)))

	profiles, err := repo.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, domain.RoleAdmin, profiles[0].Role)
	assert.Equal(t, "u1", profiles[1].ID)
}

func TestUpdateRole(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET role = $1 WHERE id = $2")).
		WithArgs("booster", "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET role = $1 WHERE id = $2")).
		WithArgs("admin", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdateRole(context.Background(), "u1", domain.RoleBooster))
	assert.ErrorIs(t, repo.UpdateRole(context.Background(), "ghost", domain.RoleAdmin), domain.ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	order := domain.BoostOrder{
		ID:          "o1",
		UserID:      "u1",
		Game:        domain.GameValorant,
		CurrentRank: "iron",
		DesiredRank: "silver",
		Budget:      40,
		Price:       25,
		Urgency:     domain.UrgencyNormal,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs("o1", "u1", pgxmock.AnyArg(), "valorant", "iron", "silver", 40.0, int64(25), "normal", "pending", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.CreateOrder(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrders_FiltersByUserInQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE user_id = $1 ORDER BY created_at DESC")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "booster_id", "game", "current_rank", "desired_rank",
			"budget", "price", "urgency", "status", "created_at", "updated_at",
		}))

	orders, err := repo.ListOrders(context.Background(), domain.OrderFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrders_StaffSeesAll(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM orders ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "booster_id", "game", "current_rank", "desired_rank",
			"budget", "price", "urgency", "status", "created_at", "updated_at",
		}))

	_, err := repo.ListOrders(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionOrder_Conflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders")).
		WithArgs("in-progress", pgxmock.AnyArg(), pgxmock.AnyArg(), "o1", "pending").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "booster_id", "game", "current_rank", "desired_rank",
			"budget", "price", "urgency", "status", "created_at", "updated_at",
		}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)")).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.TransitionOrder(context.Background(), domain.Transition{
		OrderID:   "o1",
		From:      domain.OrderStatusPending,
		To:        domain.OrderStatusInProgress,
		BoosterID: "booster-b",
	}, time.Now())
	assert.ErrorIs(t, err, domain.ErrOrderConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionOrder_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders")).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "booster_id", "game", "current_rank", "desired_rank",
			"budget", "price", "urgency", "status", "created_at", "updated_at",
		}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.TransitionOrder(context.Background(), domain.Transition{
		OrderID: "missing",
		From:    domain.OrderStatusInProgress,
		To:      domain.OrderStatusCompleted,
	}, time.Now())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateTicketStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET status = $1 WHERE id = $2 AND status = $3")).
		WithArgs("closed", "t1", "open").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateTicketStatus(context.Background(), "t1", domain.TicketStatusOpen, domain.TicketStatusClosed))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets")).
		WithArgs("closed", "t1", "open").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM tickets WHERE id = $1)")).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	err := repo.UpdateTicketStatus(context.Background(), "t1", domain.TicketStatusOpen, domain.TicketStatusClosed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResponse_ClosedTicket(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM tickets WHERE id = $1 FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("closed"))
	mock.ExpectRollback()

	err := repo.AppendResponse(context.Background(), "t1", domain.SupportResponse{ID: "r1", Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrTicketClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResponse(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("open"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_responses")).
		WithArgs("r1", "t1", "root", "on it", true, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.AppendResponse(context.Background(), "t1", domain.SupportResponse{
		ID:        "r1",
		AuthorID:  "root",
		Message:   "on it",
		IsAdmin:   true,
		CreatedAt: now,
	})
	require.NoError(t, err)
}
