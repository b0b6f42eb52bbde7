package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chart-advisor/internal/backend"
	"chart-advisor/internal/capture"
	"chart-advisor/internal/compress"
	"chart-advisor/internal/config"
	"chart-advisor/internal/orchestrator"
	"chart-advisor/internal/queue"
	"chart-advisor/internal/sink"
	"chart-advisor/internal/strategy"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("ADVISOR_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engines := &backend.Engines{
		OpenAI: backend.NewOpenAI(backend.StaticKey(cfg.OpenAIAPIKey), cfg.OpenAIModelFast, cfg.OpenAIModelDeep),
		Gemini: backend.NewGemini(backend.StaticKey(cfg.GeminiAPIKey), cfg.GeminiModelFast, cfg.GeminiModelDeep),
	}
	engine, err := engines.Get(cfg.Provider)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(cfg.WatchDir, 0o755); err != nil {
		log.Fatalf("capture dir: %v", err)
	}

	q := queue.New()
	q.SetObserver(func(ids []string) {
		logger.Debug("queue changed", "pending", len(ids))
	})

	pool := compress.NewPool(cfg.CompressWorkers, cfg.JPEGQuality, logger.With("component", "compress"))
	policy := strategy.New(cfg.FastTimeout, cfg.DeepTimeout, cfg.MaxAttempts)
	snk := sink.New(cfg.ResultTTL, printCard, logger.With("component", "sink"))

	orch := orchestrator.New(
		orchestrator.Config{MaxInFlight: cfg.MaxInFlight},
		q, pool, policy, engine, snk,
		logger.With("component", "orchestrator"),
	)

	watcher := capture.NewWatcher(cfg.WatchDir, func(raw []byte, capturedAt time.Time) {
		id, existing := q.Enqueue(raw, "", capturedAt)
		if existing {
			logger.Info("duplicate capture ignored", "item", id)
			return
		}
		logger.Info("capture enqueued", "item", id, "captured_at", capturedAt.Format(time.RFC3339))
		orch.Wake()
	}, logger.With("component", "capture"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })

	logger.Info("chart-advisor running",
		"provider", engine.Name(),
		"max_inflight", cfg.MaxInFlight,
		"max_attempts", cfg.MaxAttempts)

	err = g.Wait()
	pool.Close()
	snk.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// printCard is the stand-in presentation collaborator: one result card per
// terminal outcome on stdout.
func printCard(itemID string, o sink.Outcome) {
	if !o.Succeeded() {
		fmt.Printf("\n[%s] FAILED (%s): %s\n", itemID, o.Failure, o.Detail)
		return
	}
	a := o.Advice
	fmt.Printf("\n[%s] %s  confidence=%.2f  risk=%d  (%s, %dms)\n",
		itemID, strings.ToUpper(a.Direction), a.Confidence, a.RiskScore, a.ModelUsed, a.ResponseTimeMS)
	if a.EntryPrice != nil {
		fmt.Printf("  entry: %.4g", *a.EntryPrice)
		if a.StopLoss != nil {
			fmt.Printf("  stop: %.4g", *a.StopLoss)
		}
		if len(a.Targets) > 0 {
			fmt.Printf("  targets: %v", a.Targets)
		}
		fmt.Println()
	}
	fmt.Printf("  %s\n", a.Rationale)
	if a.Notes != "" {
		fmt.Printf("  notes: %s\n", a.Notes)
	}
}
