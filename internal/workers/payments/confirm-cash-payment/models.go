// internal/workers/payments/confirm-cash-payment/models.go
package confirmcashpayment

import (
	"time"

	apperrors "frontdesk/internal/common/errors"
)

type Status string

const (
	StatusConfirmed       Status = "CONFIRMED"
	StatusRejected        Status = "REJECTED"
	StatusAlreadyAnswered Status = "ALREADY_ANSWERED"
	StatusPartialFailure  Status = "PARTIAL_FAILURE"
	// StatusFailed means nothing was written; rescanning is safe.
	StatusFailed Status = "FAILED"
)

type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateInFlight  State = "IN_FLIGHT"
)

type Path string

const (
	PathNone     Path = "none"
	PathRemote   Path = "remote"
	PathFallback Path = "fallback"
)

// Fallback writes, in execution order.
const (
	StepMarkAnswered = "mark_answered"
	StepActivateSale = "activate_sale"
	StepCreateGrant  = "create_grant"
	StepAppendEntry  = "append_entry"
)

var fallbackSteps = []string{StepMarkAnswered, StepActivateSale, StepCreateGrant, StepAppendEntry}

type StepResult string

const (
	StepSucceeded    StepResult = "succeeded"
	StepFailed       StepResult = "failed"
	StepNotAttempted StepResult = "not_attempted"
	StepSkipped      StepResult = "skipped" // no linked sale
)

type StepReport struct {
	Name   string     `json:"name"`
	Result StepResult `json:"result"`
	Error  string     `json:"error,omitempty"`
}

// Result is what the operator sees for one scan.
type Result struct {
	AttemptID      string                   `json:"attemptId"`
	Status         Status                   `json:"status"`
	Message        string                   `json:"message"`
	Scanned        string                   `json:"scanned"`
	Code           string                   `json:"code"`
	Normalized     bool                     `json:"normalized"`
	NotificationID int64                    `json:"notificationId,omitempty"`
	MemberID       int64                    `json:"memberId,omitempty"`
	Amount         float64                  `json:"amount,omitempty"`
	AnsweredAt     *time.Time               `json:"answeredAt,omitempty"`
	Path           Path                     `json:"path"`
	Steps          []StepReport             `json:"steps,omitempty"`
	FailedStep     string                   `json:"failedStep,omitempty"`
	GrantID        *int64                   `json:"grantId,omitempty"`
	EntryLogID     *int64                   `json:"entryLogId,omitempty"`
	Transitions    []string                 `json:"transitions"`
	Error          *apperrors.StandardError `json:"error,omitempty"`
}

func (r *Result) transition(to string) {
	r.Transitions = append(r.Transitions, to)
}

// CompletedSteps lists the fallback writes that persisted.
func (r *Result) CompletedSteps() []string {
	var done []string
	for _, s := range r.Steps {
		if s.Result == StepSucceeded {
			done = append(done, s.Name)
		}
	}
	return done
}

func (r *Result) step(name string) *StepReport {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Input is the body of POST /confirm.
type Input struct {
	Code string `json:"code"`
}
