package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"frontdesk/internal/common/database"
	"frontdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

var testDBSeq atomic.Int64

// openTestDB returns a migrated in-memory SQLite database. Every call gets its
// own database, even within one test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:store_%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), testDBSeq.Add(1),
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := database.Migrate(context.Background(), conn, database.DialectSQLite); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newLocalStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(openTestDB(t), database.DialectSQLite, "sqlite")
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var testPeriodStart = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

// seedPayment stores a pending sale and its unanswered notification.
func seedPayment(t *testing.T, s *SQLStore, id int64, code string) (*models.PendingNotification, *models.DigitalSale) {
	t.Helper()
	ctx := context.Background()

	sale := &models.DigitalSale{
		ID:          id + 1000,
		MemberID:    id + 500,
		ProductID:   3,
		State:       models.SaleStatePendingPayment,
		PeriodStart: testPeriodStart,
		PeriodEnd:   testPeriodStart.AddDate(0, 1, 0),
	}
	if err := s.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	saleID := sale.ID
	n := &models.PendingNotification{
		ID:        id,
		MemberID:  sale.MemberID,
		Kind:      "cash_payment",
		SaleID:    &saleID,
		Amount:    25.5,
		Code:      code,
		CreatedAt: testPeriodStart,
	}
	if err := s.UpsertNotification(ctx, n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return n, sale
}
