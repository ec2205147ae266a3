package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"classtrack/internal/automark"
	"classtrack/internal/calendar"
	"classtrack/internal/config"
	"classtrack/internal/projection"
	"classtrack/internal/record"
	"classtrack/internal/schedule"
	"classtrack/internal/store"
)

// Worker runs the auto-mark scheduler: periodic scans for elapsed class
// slots, staging into the Redis cache, and the end-of-day batch upload.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	if !redisClient.Healthy(ctx) {
		logrus.Warn("redis not reachable; staged entries will not survive restarts until it returns")
	}
	cache := store.NewStagingCache(redisClient.Client, cfg.AutoMarkKeyspace)
	repo := record.NewRepository(db.Client)

	now := time.Now()
	in, err := projection.FetchInputs(ctx, repo, now.AddDate(-1, 0, 0), now.AddDate(0, 0, 1))
	if err != nil {
		logrus.WithError(err).Fatal("initial schedule fetch failed")
	}
	idx := schedule.NewIndex(in.Slots)
	res := calendar.NewResolver(in.Holidays, in.OffDays)

	sched := automark.New(cache, repo, idx, res, automark.SystemClock(), logrus.StandardLogger(), automark.Options{
		ScanInterval: cfg.ScanInterval,
		FlushHour:    cfg.FlushHour,
		FlushMinute:  cfg.FlushMinute,
		PollInterval: cfg.PollInterval,
	})

	// Log staging activity as it happens.
	go func() {
		for evt := range relay(ctx, sched.Subscribe()) {
			logrus.WithFields(logrus.Fields{
				"kind":  evt.Kind,
				"key":   evt.Key.String(),
				"count": evt.Count,
			}).Debug("auto-mark event")
		}
	}()

	sched.Run(ctx)
}

// relay closes the event stream when the context ends so the logging
// goroutine exits with the worker.
func relay(ctx context.Context, in <-chan automark.Event) <-chan automark.Event {
	out := make(chan automark.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-in:
				out <- evt
			}
		}
	}()
	return out
}
