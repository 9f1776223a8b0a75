// cmd/report-worker/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"report-worker/internal/common/config"
	"report-worker/internal/common/database"
	"report-worker/internal/common/logger"
	"report-worker/internal/notify"
	"report-worker/internal/poller"
	"report-worker/internal/queue"
	"report-worker/internal/render"
	"report-worker/internal/scheduler"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting report worker",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		zapLog.Fatal("invalid timezone", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Postgres (queue + results) with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		return err
	}, 10, 2*time.Second, zapLog, "Postgres initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- ClickHouse (archive store) with retry ---
	var ch *database.ClickHouseClient
	err = retryWithBackoff(func() error {
		var err error
		ch, err = database.NewClickHouse(cfg.Database.ClickHouse)
		return err
	}, 10, 2*time.Second, zapLog, "ClickHouse initialization")
	if err != nil {
		zapLog.Fatal("clickhouse unavailable", zap.Error(err))
	}
	defer ch.Close()

	store := queue.NewStore(pg.GetDB())

	// Table creation failure keeps the process alive but idle: the loops log
	// their query errors on every tick until the schema problem is fixed.
	if err := store.CreateTables(ctx); err != nil {
		log.WithError(err).Error("failed to ensure worker tables", nil)
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLog.Info("metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				zapLog.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	renderer := render.NewPDF(cfg.Reports, log)
	mailer := notify.NewMailer(cfg.SMTP, log)

	var wg sync.WaitGroup

	if cfg.Poller.Enabled {
		p := poller.New(store, ch, renderer, mailer, log, cfg.Poller.Interval, cfg.Poller.QueryTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}

	if cfg.Scheduler.Enabled {
		e := scheduler.NewEvaluator(store, log, cfg.Scheduler.Interval, loc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(ctx)
		}()
	}

	if !cfg.Poller.Enabled && !cfg.Scheduler.Enabled {
		zapLog.Warn("both loops disabled, nothing to do")
	}

	<-ctx.Done()
	zapLog.Info("shutdown signal received")
	wg.Wait()
	zapLog.Info("report worker stopped")
}
