package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/common/database"
	"frontdesk/internal/models"
)

const notificationColumns = `id, member_id, kind, sale_id, amount, code, created_at, read, answered, answered_at`

const saleColumns = `id, member_id, product_id, locker_id, state, period_start, period_end`

// SQLStore implements Store over database/sql for both dialects.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	name    string
}

func NewSQLStore(db *sql.DB, dialect database.Dialect, name string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, name: name}
}

func (s *SQLStore) Name() string { return s.name }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.PendingNotification, error) {
	var (
		n          models.PendingNotification
		saleID     sql.NullInt64
		answeredAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.MemberID, &n.Kind, &saleID, &n.Amount, &n.Code,
		&n.CreatedAt, &n.Read, &n.Answered, &answeredAt); err != nil {
		return nil, err
	}
	if saleID.Valid {
		id := saleID.Int64
		n.SaleID = &id
	}
	if answeredAt.Valid {
		at := answeredAt.Time
		n.AnsweredAt = &at
	}
	return &n, nil
}

func (s *SQLStore) FindNotificationByCode(ctx context.Context, code string, answered *bool) (*models.PendingNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM pending_notifications WHERE code = ?`
	args := []any{code}
	if answered != nil {
		query += ` AND answered = ?`
		args = append(args, *answered)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	n, err := scanNotification(s.db.QueryRowContext(ctx, s.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification by code %s: %w", code, err)
	}
	return n, nil
}

func (s *SQLStore) FindNotificationByID(ctx context.Context, id int64) (*models.PendingNotification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+notificationColumns+` FROM pending_notifications WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLStore) MarkNotificationAnswered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE pending_notifications
   SET answered = ?, read = ?, answered_at = ?
 WHERE id = ? AND answered = ?`),
		true, true, at.UTC(), id, false)
	if err != nil {
		return fmt.Errorf("mark notification %d answered: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification %d answered: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindNotificationByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyAnswered
}

func (s *SQLStore) FindSale(ctx context.Context, id int64) (*models.DigitalSale, error) {
	var (
		sale     models.DigitalSale
		lockerID sql.NullInt64
		state    string
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+saleColumns+` FROM digital_sales WHERE id = ?`), id).
		Scan(&sale.ID, &sale.MemberID, &sale.ProductID, &lockerID, &state, &sale.PeriodStart, &sale.PeriodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find sale %d: %w", id, err)
	}
	sale.State = models.SaleState(state)
	if lockerID.Valid {
		l := lockerID.Int64
		sale.LockerID = &l
	}
	return &sale, nil
}

func (s *SQLStore) ActivateSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE digital_sales SET state = ? WHERE id = ? AND state = ?`),
		string(models.SaleStateActive), id, string(models.SaleStatePendingPayment))
	if err != nil {
		return fmt.Errorf("activate sale %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate sale %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindSale(ctx, id); err != nil {
		return err
	}
	return ErrSaleNotPending
}

func (s *SQLStore) CreateAccessGrant(ctx context.Context, g *models.AccessGrant) (int64, error) {
	id, err := s.insert(ctx, `
INSERT INTO access_grants (member_id, product_id, sale_id, locker_id, active, cancelled, period_start, period_end)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.MemberID, g.ProductID, g.SaleID, nullableInt(g.LockerID), g.Active, g.Cancelled,
		g.PeriodStart.UTC(), g.PeriodEnd.UTC())
	if err != nil {
		return 0, fmt.Errorf("create access grant for sale %d: %w", g.SaleID, err)
	}
	g.ID = id
	return id, nil
}

func (s *SQLStore) AppendEntryLog(ctx context.Context, e *models.EntryLog) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	id, err := s.insert(ctx, `
INSERT INTO entry_logs (member_id, access_kind, area, device, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		e.MemberID, e.AccessKind, e.Area, e.Device, e.Notes, e.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("append entry log for member %d: %w", e.MemberID, err)
	}
	e.ID = id
	return id, nil
}

func (s *SQLStore) CreateCompletionNotification(ctx context.Context, c *models.CompletionNotification) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	id, err := s.insert(ctx, `
INSERT INTO completion_notifications (notification_id, member_id, kind, message, created_at)
VALUES (?, ?, ?, ?, ?)`,
		c.NotificationID, c.MemberID, c.Kind, c.Message, c.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("create completion notification for %d: %w", c.NotificationID, err)
	}
	c.ID = id
	return id, nil
}

// UpsertNotification writes a notification under its existing id. Used to
// mirror authoritative records and to seed the local store.
func (s *SQLStore) UpsertNotification(ctx context.Context, n *models.PendingNotification) error {
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var answeredAt any
	if n.AnsweredAt != nil {
		answeredAt = n.AnsweredAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO pending_notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  member_id = excluded.member_id,
  kind = excluded.kind,
  sale_id = excluded.sale_id,
  amount = excluded.amount,
  code = excluded.code,
  read = excluded.read,
  answered = excluded.answered,
  answered_at = excluded.answered_at`),
		n.ID, n.MemberID, n.Kind, nullableInt(n.SaleID), n.Amount, n.Code,
		createdAt.UTC(), n.Read, n.Answered, answeredAt)
	if err != nil {
		return fmt.Errorf("upsert notification %d: %w", n.ID, err)
	}
	return nil
}

// UpsertSale writes a sale under its existing id.
func (s *SQLStore) UpsertSale(ctx context.Context, sale *models.DigitalSale) error {
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO digital_sales (`+saleColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  member_id = excluded.member_id,
  product_id = excluded.product_id,
  locker_id = excluded.locker_id,
  state = excluded.state,
  period_start = excluded.period_start,
  period_end = excluded.period_end`),
		sale.ID, sale.MemberID, sale.ProductID, nullableInt(sale.LockerID), string(sale.State),
		sale.PeriodStart.UTC(), sale.PeriodEnd.UTC())
	if err != nil {
		return fmt.Errorf("upsert sale %d: %w", sale.ID, err)
	}
	return nil
}

func (s *SQLStore) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.SupportsReturning() {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.q(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
