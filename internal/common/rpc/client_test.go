package rpc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"frontdesk/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTerminal = Terminal{Device: "front-1", Area: "front_desk", AccessKind: "cash_payment"}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"already answered raise", &pq.Error{Code: "P0001", Message: "ALREADY_ANSWERED"}, ErrAlreadyAnswered},
		{"other raise", &pq.Error{Code: "P0001", Message: "SALE_NOT_PENDING"}, ErrRemoteRejected},
		{"not found raise", &pq.Error{Code: "P0002", Message: "NOT_FOUND"}, ErrRemoteRejected},
		{"missing function", &pq.Error{Code: "42883", Message: "function confirm_cash_payment does not exist"}, ErrRemoteUnavailable},
		{"connection failure", &pq.Error{Code: "08006"}, ErrRemoteUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, ErrRemoteUnavailable},
		{"statement cancelled", &pq.Error{Code: "57014"}, ErrRemoteUnavailable},
		{"dial error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrRemoteUnavailable},
		{"deadline", context.DeadlineExceeded, ErrRemoteUnavailable},
		{"http 503", &StatusError{StatusCode: 503}, ErrRemoteUnavailable},
		{"http 404", &StatusError{StatusCode: 404}, ErrRemoteUnavailable},
		{"http 409", &StatusError{StatusCode: 409}, ErrAlreadyAnswered},
		{"http 400 raise", &StatusError{StatusCode: 400, Code: "P0001", Message: "ALREADY_ANSWERED"}, ErrAlreadyAnswered},
		{"http 400 other", &StatusError{StatusCode: 400, Code: "22P02", Message: "invalid input"}, ErrRemoteRejected},
		{"http 401", &StatusError{StatusCode: 401}, ErrRemoteRejected},
		{"opaque", errors.New("something odd"), ErrRemoteRejected},
		{"already classified", ErrAlreadyAnswered, ErrAlreadyAnswered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.err), tt.want)
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestPostgresClient_ConfirmPayment(t *testing.T) {
	db, mock := setupMockDB(t)
	c := NewPostgresClient(db, config.RemoteConfig{Function: "confirm_cash_payment", Timeout: 1000}, testTerminal)

	doc := `{"status":"confirmed","notification_id":14,"member_id":7,"amount":25.5,"code":"CASH-14","answered_at":"2026-10-16T09:30:00+00:00","grant_id":3,"entry_log_id":88}`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "confirm_cash_payment"($1, $2, $3, $4)`)).
		WithArgs(int64(14), "front-1", "front_desk", "cash_payment").
		WillReturnRows(sqlmock.NewRows([]string{"confirm_cash_payment"}).AddRow([]byte(doc)))

	res, err := c.ConfirmPayment(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, int64(7), res.MemberID)
	assert.Equal(t, 25.5, res.Amount)
	require.NotNil(t, res.EntryLogID)
	assert.Equal(t, int64(88), *res.EntryLogID)
	assert.Equal(t, config.RemoteTransportPostgres, c.Transport())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClient_AlreadyAnswered(t *testing.T) {
	db, mock := setupMockDB(t)
	c := NewPostgresClient(db, config.RemoteConfig{Function: "confirm_cash_payment", Timeout: 1000}, testTerminal)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "confirm_cash_payment"`)).
		WillReturnError(&pq.Error{Code: "P0001", Message: "ALREADY_ANSWERED"})

	_, err := c.ConfirmPayment(context.Background(), 14)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestPostgresClient_Timeout(t *testing.T) {
	db, mock := setupMockDB(t)
	c := NewPostgresClient(db, config.RemoteConfig{Function: "confirm_cash_payment", Timeout: 20}, testTerminal)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "confirm_cash_payment"`)).
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"confirm_cash_payment"}).AddRow([]byte(`{}`)))

	start := time.Now()
	_, err := c.ConfirmPayment(context.Background(), 14)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestHTTPClient_ConfirmPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/confirm_cash_payment", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 14, body["p_notification_id"])
		assert.Equal(t, "front-1", body["p_device"])

		_, _ = w.Write([]byte(`{"status":"confirmed","notification_id":14,"member_id":7,"amount":25.5,"code":"CASH-14"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(config.RemoteConfig{BaseURL: srv.URL + "/", Function: "confirm_cash_payment", APIKey: "secret", Timeout: 1000}, testTerminal)
	res, err := c.ConfirmPayment(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.MemberID)
	assert.Equal(t, "CASH-14", res.Code)
	assert.Equal(t, config.RemoteTransportHTTP, c.Transport())
}

func TestHTTPClient_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"conflict", http.StatusConflict, `{"message":"ALREADY_ANSWERED"}`, ErrAlreadyAnswered},
		{"raise in body", http.StatusBadRequest, `{"code":"P0001","message":"ALREADY_ANSWERED"}`, ErrAlreadyAnswered},
		{"ok but answered", http.StatusOK, `{"status":"already_answered"}`, ErrAlreadyAnswered},
		{"gateway down", http.StatusBadGateway, ``, ErrRemoteUnavailable},
		{"function missing", http.StatusNotFound, `{"code":"PGRST202"}`, ErrRemoteUnavailable},
		{"bad request", http.StatusBadRequest, `{"code":"22P02","message":"invalid input syntax"}`, ErrRemoteRejected},
		{"garbage", http.StatusOK, `not json`, ErrRemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(config.RemoteConfig{BaseURL: srv.URL, Function: "confirm_cash_payment", Timeout: 1000}, testTerminal)
			_, err := c.ConfirmPayment(context.Background(), 14)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(config.RemoteConfig{BaseURL: url, Function: "confirm_cash_payment", Timeout: 500}, testTerminal)
	_, err := c.ConfirmPayment(context.Background(), 14)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}
