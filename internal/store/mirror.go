package store

import (
	"context"
	"errors"
	"time"

	"frontdesk/internal/common/database"
	"frontdesk/internal/common/logger"
	"frontdesk/internal/models"
)

// MirroredStore treats primary as authoritative and copies every notification
// and sale it reads from there into local, so lookups keep working while the
// primary is unreachable. Writes only ever go to primary; grant, entry and
// completion rows are not mirrored.
type MirroredStore struct {
	primary Store
	local   *SQLStore
	logger  logger.Logger
}

func NewMirroredStore(primary Store, local *SQLStore, log logger.Logger) *MirroredStore {
	return &MirroredStore{
		primary: primary,
		local:   local,
		logger:  log.WithFields(map[string]interface{}{"component": "store.mirror"}),
	}
}

func (m *MirroredStore) Name() string { return "mirrored(" + m.primary.Name() + ")" }

func (m *MirroredStore) Ping(ctx context.Context) error {
	if err := m.primary.Ping(ctx); err != nil {
		return err
	}
	return m.local.Ping(ctx)
}

func (m *MirroredStore) FindNotificationByCode(ctx context.Context, code string, answered *bool) (*models.PendingNotification, error) {
	n, err := m.primary.FindNotificationByCode(ctx, code, answered)
	if err == nil {
		m.mirrorNotification(ctx, n)
		return n, nil
	}
	if !database.IsConnectionError(err) {
		return nil, err
	}
	m.logger.Warn("primary unreachable, serving notification from local store", map[string]interface{}{
		"code":  code,
		"error": err,
		"stale": true,
	})
	return m.local.FindNotificationByCode(ctx, code, answered)
}

func (m *MirroredStore) FindNotificationByID(ctx context.Context, id int64) (*models.PendingNotification, error) {
	n, err := m.primary.FindNotificationByID(ctx, id)
	if err == nil {
		m.mirrorNotification(ctx, n)
		return n, nil
	}
	if !database.IsConnectionError(err) {
		return nil, err
	}
	m.logger.Warn("primary unreachable, serving notification from local store", map[string]interface{}{
		"notificationId": id,
		"error":          err,
		"stale":          true,
	})
	return m.local.FindNotificationByID(ctx, id)
}

func (m *MirroredStore) FindSale(ctx context.Context, id int64) (*models.DigitalSale, error) {
	s, err := m.primary.FindSale(ctx, id)
	if err == nil {
		if uerr := m.local.UpsertSale(ctx, s); uerr != nil {
			m.logger.Warn("failed to mirror sale", map[string]interface{}{"saleId": id, "error": uerr})
		}
		return s, nil
	}
	if !database.IsConnectionError(err) {
		return nil, err
	}
	m.logger.Warn("primary unreachable, serving sale from local store", map[string]interface{}{
		"saleId": id,
		"error":  err,
		"stale":  true,
	})
	return m.local.FindSale(ctx, id)
}

func (m *MirroredStore) MarkNotificationAnswered(ctx context.Context, id int64, at time.Time) error {
	if err := m.primary.MarkNotificationAnswered(ctx, id, at); err != nil {
		return err
	}
	m.mirrorWrite("mark_answered", id, m.local.MarkNotificationAnswered(ctx, id, at))
	return nil
}

func (m *MirroredStore) ActivateSale(ctx context.Context, id int64) error {
	if err := m.primary.ActivateSale(ctx, id); err != nil {
		return err
	}
	m.mirrorWrite("activate_sale", id, m.local.ActivateSale(ctx, id))
	return nil
}

func (m *MirroredStore) CreateAccessGrant(ctx context.Context, g *models.AccessGrant) (int64, error) {
	return m.primary.CreateAccessGrant(ctx, g)
}

func (m *MirroredStore) AppendEntryLog(ctx context.Context, e *models.EntryLog) (int64, error) {
	return m.primary.AppendEntryLog(ctx, e)
}

func (m *MirroredStore) CreateCompletionNotification(ctx context.Context, c *models.CompletionNotification) (int64, error) {
	return m.primary.CreateCompletionNotification(ctx, c)
}

// mirrorNotification copies n and its linked sale into local. The sale goes
// first since the local notification row references it.
func (m *MirroredStore) mirrorNotification(ctx context.Context, n *models.PendingNotification) {
	if n.SaleID != nil {
		sale, err := m.primary.FindSale(ctx, *n.SaleID)
		if err == nil {
			err = m.local.UpsertSale(ctx, sale)
		}
		if err != nil {
			m.logger.Warn("failed to mirror notification sale", map[string]interface{}{
				"notificationId": n.ID,
				"saleId":         *n.SaleID,
				"error":          err,
			})
			return
		}
	}
	if err := m.local.UpsertNotification(ctx, n); err != nil {
		m.logger.Warn("failed to mirror notification", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err,
		})
	}
}

// mirrorWrite logs local copy drift. A record the local store never saw, or
// already holds in the target state, is not drift.
func (m *MirroredStore) mirrorWrite(op string, id int64, err error) {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyAnswered) || errors.Is(err, ErrSaleNotPending) {
		return
	}
	m.logger.Warn("failed to mirror write", map[string]interface{}{
		"op":    op,
		"id":    id,
		"error": err,
	})
}
