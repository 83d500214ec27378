// cmd/frontdesk/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"frontdesk/internal/common/aws"
	"frontdesk/internal/common/config"
	"frontdesk/internal/common/database"
	"frontdesk/internal/common/logger"
	"frontdesk/internal/common/observability"
	"frontdesk/internal/common/rpc"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	le "frontdesk/internal/workers/entries/listen-entries"
	ccp "frontdesk/internal/workers/payments/confirm-cash-payment"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting frontdesk...",
		zap.String("storeMode", cfg.Store.Mode),
		zap.Bool("remote", cfg.Remote.Enabled),
		zap.Bool("listener", cfg.Listener.Enabled),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Stores ---
	opened, err := store.Open(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("store open failed", zap.Error(err))
	}
	defer opened.Close()

	if opened.Postgres != nil {
		pg := opened.Postgres
		err = retryWithBackoff(func() error {
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			if cfg.Store.Mode != config.StoreModeMirrored {
				zapLog.Fatal("postgres failed after retries", zap.Error(err))
			}
			// mirrored mode keeps serving lookups from the local copy
			zapLog.Warn("postgres unreachable, starting on the local mirror", zap.Error(err))
		} else {
			zapLog.Info("PostgreSQL connected successfully")
			if cfg.Database.Postgres.Migrate {
				if err := database.Migrate(ctx, pg.DB, database.DialectPostgres); err != nil {
					zapLog.Fatal("postgres migration failed", zap.Error(err))
				}
			}
		}
	}

	// --- Remote confirmation routine ---
	var remote rpc.Client
	if cfg.Remote.Enabled {
		terminal := rpc.Terminal{
			Device:     cfg.Confirmation.Device,
			Area:       cfg.Confirmation.Area,
			AccessKind: cfg.Confirmation.AccessKind,
		}
		switch cfg.Remote.Transport {
		case config.RemoteTransportHTTP:
			remote = rpc.NewHTTPClient(cfg.Remote, terminal)
		default:
			pg := opened.Postgres
			if pg == nil {
				pg, err = database.NewPostgres(cfg.Database.Postgres)
				if err != nil {
					zapLog.Fatal("remote postgres open failed", zap.Error(err))
				}
				defer pg.Close()
			}
			remote = rpc.NewPostgresClient(pg.DB, cfg.Remote, terminal)
		}
		zapLog.Info("remote confirmation enabled", zap.String("transport", remote.Transport()))
	}

	confirm := ccp.NewHandler(ccp.LoadConfig(cfg.Confirmation), opened.Store, remote, obs, log)

	// --- Entry listener ---
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	var listener *le.Listener
	if cfg.Listener.Enabled {
		deduper, closeDedupe := buildDeduper(ctx, cfg, zapLog)
		defer closeDedupe()

		var sns *aws.SNSPublisher
		if cfg.Notifications.SNS.Enabled {
			sns, err = aws.NewSNSPublisher(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN)
			if err != nil {
				zapLog.Fatal("sns publisher init failed", zap.Error(err))
			}
		}

		decoder, err := le.NewDecoder(cfg.Listener.ValidateSchema)
		if err != nil {
			zapLog.Fatal("entry decoder init failed", zap.Error(err))
		}

		dispatcher := le.NewDispatcher()
		consumer := le.NewConsumer(deduper, onEntryDetected(log, sns), log)
		go dispatcher.Run(consumerCtx, consumer.Handle)

		listener = le.NewListener(
			le.LoadConfig(cfg.Listener),
			le.NewPQDialer(cfg.Database.Postgres.GetDSN()),
			decoder, dispatcher, log,
		)
		if err := listener.Start(cfg.Listener.Channel); err != nil {
			zapLog.Fatal("listener start failed", zap.Error(err))
		}
	}

	// --- HTTP: health, readiness, metrics, confirm ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", readyHandler(opened.Store, listener))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/confirm", confirm)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("http server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zapLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http shutdown", zap.Error(err))
	}
	if listener != nil {
		if err := listener.Stop(); err != nil {
			zapLog.Warn("listener stop", zap.Error(err))
		}
	}
	stopConsumer()
	zapLog.Info("frontdesk stopped")
}

// buildDeduper returns the configured seen set and its cleanup.
func buildDeduper(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (le.Deduper, func()) {
	dcfg := le.LoadDedupeConfig(cfg.Dedupe)
	if cfg.Dedupe.Backend != config.DedupeBackendRedis {
		return le.NewMemoryDeduper(dcfg.Capacity), func() {}
	}

	rdb := database.NewRedis(cfg.Database.Redis)
	err := retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Redis connected successfully")
	return le.NewRedisDeduper(rdb.Client, dcfg), func() { _ = rdb.Close() }
}

// onEntryDetected logs each entry and forwards it to the SNS topic when one
// is configured.
func onEntryDetected(log logger.Logger, sns *aws.SNSPublisher) le.EntryHandler {
	return func(ctx context.Context, ev models.EntryEvent) {
		fields := map[string]interface{}{
			"entryId":    ev.ID,
			"memberId":   ev.MemberID,
			"accessKind": ev.AccessKind,
			"area":       ev.Area,
			"device":     ev.Device,
			"createdAt":  ev.CreatedAt,
		}
		log.Info("entry detected", fields)

		if sns == nil {
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if msgID, err := sns.Publish(pubCtx, ev); err != nil {
			log.Warn("entry fan-out failed", map[string]interface{}{"entryId": ev.ID, "error": err})
		} else {
			log.Debug("entry published", map[string]interface{}{"entryId": ev.ID, "messageId": msgID})
		}
	}
}

type readiness struct {
	Ready    bool       `json:"ready"`
	Store    string     `json:"store"`
	StoreErr string     `json:"storeError,omitempty"`
	Listener *le.Health `json:"listener,omitempty"`
}

func readyHandler(st store.Store, listener *le.Listener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		res := readiness{Ready: true, Store: st.Name()}
		if err := st.Ping(ctx); err != nil {
			res.Ready = false
			res.StoreErr = err.Error()
		}
		if listener != nil {
			h := listener.Health()
			res.Listener = &h
			if !h.Healthy() {
				res.Ready = false
			}
		}

		status := http.StatusOK
		if !res.Ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(res)
	}
}
