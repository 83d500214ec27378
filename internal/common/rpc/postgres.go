package rpc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"frontdesk/internal/common/config"

	"github.com/lib/pq"
)

// PostgresClient calls the routine as a SQL function over lib/pq.
type PostgresClient struct {
	db       *sql.DB
	query    string
	timeout  time.Duration
	terminal Terminal
}

func NewPostgresClient(db *sql.DB, cfg config.RemoteConfig, terminal Terminal) *PostgresClient {
	return &PostgresClient{
		db:       db,
		query:    fmt.Sprintf("SELECT %s($1, $2, $3, $4)", pq.QuoteIdentifier(cfg.Function)),
		timeout:  config.GetDuration(cfg.Timeout),
		terminal: terminal,
	}
}

func (c *PostgresClient) Transport() string { return config.RemoteTransportPostgres }

func (c *PostgresClient) ConfirmPayment(ctx context.Context, notificationID int64) (*RemoteResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var raw []byte
	err := c.db.QueryRowContext(ctx, c.query,
		notificationID, c.terminal.Device, c.terminal.Area, c.terminal.AccessKind,
	).Scan(&raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, ctx.Err())
		}
		return nil, Classify(err)
	}

	var res RemoteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrRemoteRejected, err)
	}
	return &res, nil
}
