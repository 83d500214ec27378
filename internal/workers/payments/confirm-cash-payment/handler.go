// internal/workers/payments/confirm-cash-payment/handler.go
package confirmcashpayment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/common/codes"
	apperrors "frontdesk/internal/common/errors"
	"frontdesk/internal/common/logger"
	"frontdesk/internal/common/metrics"
	"frontdesk/internal/common/observability"
	"frontdesk/internal/common/rpc"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
)

const (
	TaskType = "confirm-cash-payment"
)

// Handler drives one scanned code to a terminal outcome. It holds no locks:
// concurrent attempts on the same code, from this or any other terminal, are
// arbitrated by the answered check-and-set in the store or in the remote
// routine.
type Handler struct {
	config     *Config
	store      store.Store
	remote     rpc.Client // nil when no remote routine is configured
	normalizer *codes.Normalizer
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, st store.Store, remote rpc.Client, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Handler{
		config:     config,
		store:      st,
		remote:     remote,
		normalizer: codes.NewNormalizer(config.CodePrefix),
		obs:        obs,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Confirm never returns nil. Operator-facing outcomes are statuses, not errors.
func (h *Handler) Confirm(ctx context.Context, scanned string) *Result {
	start := time.Now()
	res := &Result{
		AttemptID: uuid.NewString(),
		Scanned:   scanned,
		Path:      PathNone,
	}
	res.transition(string(StateReceived))

	ctx, span := h.obs.StartSpan(ctx, "confirmation.confirm",
		attribute.String("attempt.id", res.AttemptID),
		attribute.String("terminal.device", h.config.Terminal.Device),
	)
	log := h.logger.WithFields(map[string]interface{}{"attemptId": res.AttemptID})

	defer func() {
		span.SetAttributes(
			attribute.String("confirmation.status", string(res.Status)),
			attribute.String("confirmation.path", string(res.Path)),
			attribute.String("confirmation.code", res.Code),
		)
		if res.Status == StatusPartialFailure || res.Status == StatusFailed {
			span.SetStatus(otelcodes.Error, res.Message)
		}
		span.End()

		metrics.ConfirmationsTotal.WithLabelValues(string(res.Status)).Inc()
		metrics.ConfirmationDuration.WithLabelValues(string(res.Path)).Observe(time.Since(start).Seconds())
		h.obs.RecordConfirmation(ctx, string(res.Status), string(res.Path), time.Since(start))
		h.logOutcome(log, res)
	}()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	// 1. normalize; nothing touches the store until the code looks right
	if err := h.normalizer.Validate(scanned); err != nil {
		return h.reject(res, apperrors.NewCodeFormatError(scanned))
	}
	code, ok := h.normalizer.Normalize(scanned)
	res.Code = code
	res.Normalized = ok
	if !ok {
		return h.reject(res, apperrors.NewCodeFormatError(scanned))
	}

	// 2. the unanswered lookup is the pre-check; the real guard is the
	// check-and-set further down
	n, err := h.store.FindNotificationByCode(ctx, code, store.Bool(false))
	if errors.Is(err, store.ErrNotFound) {
		// 3. answered before, or never existed
		prior, perr := h.store.FindNotificationByCode(ctx, code, nil)
		switch {
		case perr == nil:
			res.transition(string(StateValidated))
			return h.alreadyAnswered(res, prior)
		case errors.Is(perr, store.ErrNotFound):
			return h.reject(res, apperrors.NewNotFoundError(code))
		default:
			return h.fail(res, apperrors.NewStoreFailureError("find_notification", perr))
		}
	}
	if err != nil {
		return h.fail(res, apperrors.NewStoreFailureError("find_notification", err))
	}

	res.transition(string(StateValidated))
	fillFromNotification(res, n)
	log.Info("notification validated", map[string]interface{}{
		"notificationId": n.ID,
		"code":           code,
		"hasSale":        n.HasSale(),
	})

	// 4. atomic remote routine first
	res.transition(string(StateInFlight))
	if h.remote != nil {
		rr, err := h.callRemote(ctx, n.ID)
		switch {
		case err == nil:
			res.Path = PathRemote
			res.AnsweredAt = rr.AnsweredAt
			res.GrantID = rr.GrantID
			res.EntryLogID = rr.EntryLogID
			if rr.MemberID != 0 {
				res.MemberID = rr.MemberID
				res.Amount = rr.Amount
			}
			// re-read so a mirrored store picks up the answered row
			h.reloadNotification(ctx, n)
			return h.confirmed(res)
		case errors.Is(err, rpc.ErrAlreadyAnswered):
			res.Path = PathRemote
			return h.alreadyAnswered(res, h.reloadNotification(ctx, n))
		case errors.Is(err, rpc.ErrRemoteUnavailable):
			log.Warn("remote confirmation unavailable, falling back", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err,
			})
		default:
			res.Path = PathRemote
			return h.fail(res, apperrors.NewRemoteRejectedError(err))
		}
	}

	// 5. client-driven fallback; may not start once the caller has gone away
	if err := ctx.Err(); err != nil {
		return h.fail(res, apperrors.NewStoreFailureError("fallback", err))
	}
	return h.fallback(ctx, res, n)
}

func (h *Handler) callRemote(ctx context.Context, notificationID int64) (*rpc.RemoteResult, error) {
	ctx, span := h.obs.StartSpan(ctx, "confirmation.remote",
		attribute.Int64("notification.id", notificationID),
		attribute.String("rpc.transport", h.remote.Transport()),
	)
	defer span.End()

	start := time.Now()
	rr, err := h.remote.ConfirmPayment(ctx, notificationID)
	outcome := remoteOutcome(err)
	span.SetAttributes(attribute.String("rpc.outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	metrics.RemoteCallsTotal.WithLabelValues(outcome).Inc()
	h.obs.RecordRemoteCall(ctx, h.remote.Transport(), outcome, time.Since(start))
	return rr, err
}

func remoteOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, rpc.ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, rpc.ErrRemoteUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

// fallback runs the four writes in order. It is not transactional: a failure
// after any write persisted is a partial failure and nothing is retried or
// undone. Once started, writes are not cut short by the caller's context.
func (h *Handler) fallback(ctx context.Context, res *Result, n *models.PendingNotification) *Result {
	res.Path = PathFallback
	res.Steps = make([]StepReport, 0, len(fallbackSteps))
	for _, name := range fallbackSteps {
		result := StepNotAttempted
		if name != StepMarkAnswered && !n.HasSale() {
			result = StepSkipped
		}
		res.Steps = append(res.Steps, StepReport{Name: name, Result: result})
	}

	wctx := context.WithoutCancel(ctx)
	answeredAt := h.now()

	// mark_answered is the check-and-set; losing it means another terminal won
	if err := h.runStep(wctx, res, StepMarkAnswered, func(ctx context.Context) error {
		return h.store.MarkNotificationAnswered(ctx, n.ID, answeredAt)
	}); err != nil {
		if errors.Is(err, store.ErrAlreadyAnswered) {
			return h.alreadyAnswered(res, h.reloadNotification(wctx, n))
		}
		return h.fail(res, apperrors.NewStoreFailureError(StepMarkAnswered, err))
	}
	res.AnsweredAt = &answeredAt

	if n.HasSale() {
		saleID := *n.SaleID

		if err := h.runStep(wctx, res, StepActivateSale, func(ctx context.Context) error {
			return h.store.ActivateSale(ctx, saleID)
		}); err != nil {
			return h.partial(res, n, StepActivateSale, err)
		}

		if err := h.runStep(wctx, res, StepCreateGrant, func(ctx context.Context) error {
			sale, err := h.store.FindSale(ctx, saleID)
			if err != nil {
				return err
			}
			grantID, err := h.store.CreateAccessGrant(ctx, models.GrantForSale(sale))
			if err != nil {
				return err
			}
			res.GrantID = &grantID
			return nil
		}); err != nil {
			return h.partial(res, n, StepCreateGrant, err)
		}

		if err := h.runStep(wctx, res, StepAppendEntry, func(ctx context.Context) error {
			entryID, err := h.store.AppendEntryLog(ctx, &models.EntryLog{
				MemberID:   n.MemberID,
				AccessKind: h.config.Terminal.AccessKind,
				Area:       h.config.Terminal.Area,
				Device:     h.config.Terminal.Device,
				Notes:      fmt.Sprintf("cash payment %s", n.Code),
				Timestamp:  answeredAt,
			})
			if err != nil {
				return err
			}
			res.EntryLogID = &entryID
			return nil
		}); err != nil {
			return h.partial(res, n, StepAppendEntry, err)
		}
	}

	h.createCompletionNotification(wctx, res, n)
	return h.confirmed(res)
}

func (h *Handler) runStep(ctx context.Context, res *Result, name string, fn func(context.Context) error) error {
	if h.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.StepTimeout)
		defer cancel()
	}

	report := res.step(name)
	if err := fn(ctx); err != nil {
		report.Result = StepFailed
		report.Error = err.Error()
		metrics.FallbackStepsTotal.WithLabelValues(name, string(StepFailed)).Inc()
		return err
	}
	report.Result = StepSucceeded
	metrics.FallbackStepsTotal.WithLabelValues(name, string(StepSucceeded)).Inc()
	return nil
}

// createCompletionNotification is best-effort in the fallback path.
func (h *Handler) createCompletionNotification(ctx context.Context, res *Result, n *models.PendingNotification) {
	_, err := h.store.CreateCompletionNotification(ctx, &models.CompletionNotification{
		NotificationID: n.ID,
		MemberID:       n.MemberID,
		Kind:           "payment_confirmed",
		Message:        fmt.Sprintf("Cash payment %s confirmed", n.Code),
		CreatedAt:      h.now(),
	})
	if err != nil {
		h.logger.Warn("completion notification not created", map[string]interface{}{
			"attemptId":      res.AttemptID,
			"notificationId": n.ID,
			"error":          err,
		})
	}
}

// reloadNotification fetches the answered row. Falls back to what was read
// before the race.
func (h *Handler) reloadNotification(ctx context.Context, n *models.PendingNotification) *models.PendingNotification {
	fresh, err := h.store.FindNotificationByID(ctx, n.ID)
	if err != nil {
		h.logger.Debug("could not reload answered notification", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err,
		})
		return n
	}
	return fresh
}

func fillFromNotification(res *Result, n *models.PendingNotification) {
	res.NotificationID = n.ID
	res.MemberID = n.MemberID
	res.Amount = n.Amount
	res.Code = n.Code
	res.AnsweredAt = n.AnsweredAt
}

func (h *Handler) confirmed(res *Result) *Result {
	res.Status = StatusConfirmed
	res.Message = "Payment confirmed"
	res.transition(string(res.Status))
	return res
}

func (h *Handler) alreadyAnswered(res *Result, n *models.PendingNotification) *Result {
	fillFromNotification(res, n)
	res.Status = StatusAlreadyAnswered
	res.Error = apperrors.NewAlreadyAnsweredError(n.ID)
	res.Message = res.Error.Message
	res.transition(string(res.Status))
	return res
}

func (h *Handler) reject(res *Result, err *apperrors.StandardError) *Result {
	res.Status = StatusRejected
	res.Error = err
	res.Message = err.Message
	res.transition(string(res.Status))
	return res
}

func (h *Handler) fail(res *Result, err *apperrors.StandardError) *Result {
	res.Status = StatusFailed
	res.Error = err
	res.Message = err.Message
	res.transition(string(res.Status))
	return res
}

func (h *Handler) partial(res *Result, n *models.PendingNotification, failed string, err error) *Result {
	res.Status = StatusPartialFailure
	res.FailedStep = failed
	res.Error = apperrors.NewPartialFailureError(n.ID, res.CompletedSteps(), failed, err)
	res.Message = res.Error.Message
	res.transition(string(res.Status))
	return res
}

func (h *Handler) logOutcome(log logger.Logger, res *Result) {
	fields := map[string]interface{}{
		"status":         res.Status,
		"path":           res.Path,
		"code":           res.Code,
		"notificationId": res.NotificationID,
		"transitions":    res.Transitions,
	}
	switch res.Status {
	case StatusPartialFailure:
		fields["completedSteps"] = res.CompletedSteps()
		fields["failedStep"] = res.FailedStep
		fields["error"] = res.Error
		log.Error("confirmation partially applied, manual reconciliation required", fields)
	case StatusFailed:
		fields["error"] = res.Error
		log.Error("confirmation failed", fields)
	case StatusRejected:
		fields["reason"] = res.Message
		log.Info("confirmation rejected", fields)
	default:
		log.Info("confirmation finished", fields)
	}
}
