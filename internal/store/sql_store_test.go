package store

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"frontdesk/internal/common/database"
	"frontdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_FindNotificationByCode(t *testing.T) {
	s := newLocalStore(t)
	ctx := context.Background()
	seedPayment(t, s, 14, "CASH-14")

	n, err := s.FindNotificationByCode(ctx, "CASH-14", Bool(false))
	require.NoError(t, err)
	assert.Equal(t, int64(14), n.ID)
	assert.Equal(t, 25.5, n.Amount)
	require.NotNil(t, n.SaleID)
	assert.Equal(t, int64(1014), *n.SaleID)
	assert.False(t, n.Answered)
	assert.Nil(t, n.AnsweredAt)

	_, err = s.FindNotificationByCode(ctx, "CASH-14", Bool(true))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindNotificationByCode(ctx, "CASH-99", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_MarkNotificationAnswered(t *testing.T) {
	s := newLocalStore(t)
	ctx := context.Background()
	seedPayment(t, s, 14, "CASH-14")
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.MarkNotificationAnswered(ctx, 14, at))
	assert.ErrorIs(t, s.MarkNotificationAnswered(ctx, 14, at), ErrAlreadyAnswered)
	assert.ErrorIs(t, s.MarkNotificationAnswered(ctx, 99, at), ErrNotFound)

	n, err := s.FindNotificationByCode(ctx, "CASH-14", nil)
	require.NoError(t, err)
	assert.True(t, n.Answered)
	assert.True(t, n.Read)
	require.NotNil(t, n.AnsweredAt)
	assert.True(t, at.Equal(*n.AnsweredAt))

	_, err = s.FindNotificationByCode(ctx, "CASH-14", Bool(false))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_MarkNotificationAnswered_OneWinner(t *testing.T) {
	s := newLocalStore(t)
	seedPayment(t, s, 7, "CASH-7")

	const callers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MarkNotificationAnswered(context.Background(), 7, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if assert.ErrorIs(t, err, ErrAlreadyAnswered) {
				losers++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, callers-1, losers)
}

func TestSQLStore_SaleGrantAndEntry(t *testing.T) {
	s := newLocalStore(t)
	ctx := context.Background()
	_, sale := seedPayment(t, s, 14, "CASH-14")

	require.NoError(t, s.ActivateSale(ctx, sale.ID))
	assert.ErrorIs(t, s.ActivateSale(ctx, sale.ID), ErrSaleNotPending)
	assert.ErrorIs(t, s.ActivateSale(ctx, 4242), ErrNotFound)

	got, err := s.FindSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStateActive, got.State)
	assert.True(t, testPeriodStart.Equal(got.PeriodStart))

	g := models.GrantForSale(got)
	grantID, err := s.CreateAccessGrant(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, grantID, g.ID)
	assert.NotZero(t, grantID)

	// one grant per sale
	_, err = s.CreateAccessGrant(ctx, models.GrantForSale(got))
	assert.Error(t, err)

	entryID, err := s.AppendEntryLog(ctx, &models.EntryLog{
		MemberID: sale.MemberID, AccessKind: "cash_payment", Area: "front_desk", Device: "front-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, entryID)

	cID, err := s.CreateCompletionNotification(ctx, &models.CompletionNotification{
		NotificationID: 14, MemberID: sale.MemberID, Kind: "payment_confirmed", Message: "ok",
	})
	require.NoError(t, err)
	assert.NotZero(t, cID)

	_, err = s.FindSale(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_UpsertNotification_Overwrites(t *testing.T) {
	s := newLocalStore(t)
	ctx := context.Background()
	n, _ := seedPayment(t, s, 3, "CASH-3")

	at := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	n.Answered = true
	n.AnsweredAt = &at
	require.NoError(t, s.UpsertNotification(ctx, n))

	got, err := s.FindNotificationByID(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.Answered)

	_, err = s.FindNotificationByID(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_Postgres_FindByCodeFiltered(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewSQLStore(db, database.DialectPostgres, "postgres")

	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "member_id", "kind", "sale_id", "amount", "code", "created_at", "read", "answered", "answered_at"}).
		AddRow(int64(14), int64(7), "cash_payment", int64(21), 25.5, "CASH-14", created, false, false, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_notifications WHERE code = $1 AND answered = $2 ORDER BY id DESC LIMIT 1`)).
		WithArgs("CASH-14", false).
		WillReturnRows(rows)

	n, err := s.FindNotificationByCode(context.Background(), "CASH-14", Bool(false))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.MemberID)
	require.NotNil(t, n.SaleID)
	assert.Equal(t, int64(21), *n.SaleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_MarkAnsweredLostRace(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewSQLStore(db, database.DialectPostgres, "postgres")

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pending_notifications`)).
		WithArgs(true, true, sqlmock.AnyArg(), int64(14), false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_notifications WHERE id = $1`)).
		WithArgs(int64(14)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_id", "kind", "sale_id", "amount", "code", "created_at", "read", "answered", "answered_at"}).
			AddRow(int64(14), int64(7), "cash_payment", nil, 10.0, "CASH-14", time.Now(), true, true, time.Now()))

	err := s.MarkNotificationAnswered(context.Background(), 14, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_InsertReturning(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewSQLStore(db, database.DialectPostgres, "postgres")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO entry_logs (member_id, access_kind, area, device, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`)).
		WithArgs(int64(7), "cash_payment", "front_desk", "front-1", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(88)))

	e := &models.EntryLog{MemberID: 7, AccessKind: "cash_payment", Area: "front_desk", Device: "front-1"}
	id, err := s.AppendEntryLog(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(88), id)
	assert.Equal(t, int64(88), e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
