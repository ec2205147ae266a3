package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"classtrack/internal/auth"
	"classtrack/internal/automark"
	"classtrack/internal/calendar"
	"classtrack/internal/config"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/model"
	"classtrack/internal/projection"
	"classtrack/internal/record"
	"classtrack/internal/schedule"
	"classtrack/internal/stats"
	"classtrack/internal/store"
	"classtrack/internal/target"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logrus.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Warn("db not reachable at startup")
	}
	if db == nil || db.Client == nil {
		// Open itself failed; there is no handle to retry against.
		logrus.Fatal("database handle unavailable")
	}
	defer func() {
		_ = db.Close()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	cache := store.NewStagingCache(redisClient.Client, cfg.AutoMarkKeyspace)
	repo := record.NewRepository(db.Client)

	// The scheduler instance here serves enable/disable/override; the
	// timer loop itself lives in cmd/worker against the same cache.
	marker := func(ctx context.Context) (*automark.Scheduler, error) {
		_, idx, res, err := fetchEngine(ctx, repo, time.Now())
		if err != nil {
			return nil, err
		}
		return automark.New(cache, repo, idx, res, automark.SystemClock(), logrus.StandardLogger(), automark.Options{
			ScanInterval: cfg.ScanInterval,
			FlushHour:    cfg.FlushHour,
			FlushMinute:  cfg.FlushMinute,
			PollInterval: cfg.PollInterval,
		}), nil
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/tokens", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := auth.Issue(req.StudentID, "student", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": token.Value,
			"expires_at":   token.ExpiresAt.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.StudentAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	v1.GET("/stats", func(c *gin.Context) {
		asOf := time.Now()
		if raw := c.Query("as_of"); raw != "" {
			parsed, err := calendar.ParseDate(raw)
			if err != nil {
				writeErr(c, err)
				return
			}
			asOf = parsed
		}
		in, idx, res, err := fetchEngine(c.Request.Context(), repo, asOf)
		if err != nil {
			writeErr(c, err)
			return
		}
		result := stats.Compute(in.Records, idx, res, asOf)
		c.JSON(http.StatusOK, statsPayload(result))
	})

	v1.POST("/projection/day", func(c *gin.Context) {
		var req struct {
			Date string `json:"date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeErr(c, err)
			return
		}
		in, idx, res, err := fetchEngine(c.Request.Context(), repo, time.Now())
		if err != nil {
			writeErr(c, err)
			return
		}
		current := stats.Compute(in.Records, idx, res, time.Now())
		projected, err := projection.WholeDay(current, date, idx, res)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"current": statsPayload(current), "projected": statsPayload(projected)})
	})

	v1.POST("/projection/subjects", func(c *gin.Context) {
		var req struct {
			Absences map[string][]string `json:"absences" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in, idx, res, err := fetchEngine(c.Request.Context(), repo, time.Now())
		if err != nil {
			writeErr(c, err)
			return
		}
		current := stats.Compute(in.Records, idx, res, time.Now())
		projected, err := projection.PerSubject(current, req.Absences, idx, res)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"current": statsPayload(current), "projected": statsPayload(projected)})
	})

	v1.POST("/target", func(c *gin.Context) {
		var req struct {
			Attended  int     `json:"attended"`
			Total     int     `json:"total"`
			TargetPct float64 `json:"target_pct" binding:"required"`
			StartDate string  `json:"start_date" binding:"required"`
			EndDate   string  `json:"end_date" binding:"required"`
			Subject   string  `json:"subject"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		start, err := calendar.ParseDate(req.StartDate)
		if err != nil {
			writeErr(c, err)
			return
		}
		end, err := calendar.ParseDate(req.EndDate)
		if err != nil {
			writeErr(c, err)
			return
		}
		_, idx, res, err := fetchEngine(c.Request.Context(), repo, time.Now())
		if err != nil {
			writeErr(c, err)
			return
		}
		result, err := target.Solve(target.Input{
			Attended:  req.Attended,
			Total:     req.Total,
			TargetPct: req.TargetPct,
			StartDate: start,
			EndDate:   end,
			Subject:   req.Subject,
		}, idx, res)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	v1.POST("/records", func(c *gin.Context) {
		var req struct {
			Date       string `json:"date" binding:"required"`
			SubjectKey string `json:"subject_key" binding:"required"`
			Status     string `json:"status" binding:"required"`
			ClassType  string `json:"class_type"`
			SlotID     string `json:"slot_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeErr(c, err)
			return
		}
		rec, err := repo.Create(c.Request.Context(), model.AttendanceRecord{
			Date:       date,
			SubjectKey: req.SubjectKey,
			Status:     model.Status(req.Status),
			ClassType:  req.ClassType,
			SlotID:     req.SlotID,
		})
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	v1.GET("/records", func(c *gin.Context) {
		from, err := calendar.ParseDate(c.DefaultQuery("from", model.DateKey(time.Now().AddDate(-1, 0, 0))))
		if err != nil {
			writeErr(c, err)
			return
		}
		to, err := calendar.ParseDate(c.DefaultQuery("to", model.DateKey(time.Now().AddDate(0, 0, 1))))
		if err != nil {
			writeErr(c, err)
			return
		}
		recs, err := repo.ListRange(c.Request.Context(), from, to)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	v1.GET("/schedule", func(c *gin.Context) {
		slots, err := repo.LoadSlots(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"slots": slots})
	})

	v1.GET("/holidays", func(c *gin.Context) {
		holidays, err := repo.LoadHolidays(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"holidays": holidays})
	})

	v1.POST("/automark/enable", func(c *gin.Context) {
		s, err := marker(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := s.Enable(c.Request.Context()); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": true})
	})

	v1.POST("/automark/disable", func(c *gin.Context) {
		s, err := marker(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := s.Disable(c.Request.Context()); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": false})
	})

	v1.POST("/automark/override", func(c *gin.Context) {
		var req struct {
			SubjectKey string `json:"subject_key" binding:"required"`
			Date       string `json:"date" binding:"required"`
			SlotID     string `json:"slot_id"`
			Status     string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := calendar.ParseDate(req.Date); err != nil {
			writeErr(c, err)
			return
		}
		s, err := marker(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		key := model.RecordKey{SubjectKey: req.SubjectKey, Date: req.Date, SlotID: req.SlotID}
		if err := s.Override(c.Request.Context(), key, model.Status(req.Status)); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"overridden": key.String()})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server forced shutdown")
	}
	logrus.Info("server exited")
	return nil
}

// fetchEngine fans out the record, schedule and holiday reads and builds
// the lookup structures the engine computes over.
func fetchEngine(ctx context.Context, repo *record.Repository, asOf time.Time) (projection.Inputs, *schedule.Index, *calendar.Resolver, error) {
	in, err := projection.FetchInputs(ctx, repo, asOf.AddDate(-1, 0, 0), asOf.AddDate(0, 0, 1))
	if err != nil {
		return projection.Inputs{}, nil, nil, err
	}
	return in, schedule.NewIndex(in.Slots), calendar.NewResolver(in.Holidays, in.OffDays), nil
}

// statsPayload augments raw counts with the rounded percentages the UI shows.
func statsPayload(s model.AttendanceStats) gin.H {
	subjects := make([]gin.H, 0, len(s.Subjects))
	for _, sub := range s.Subjects {
		subjects = append(subjects, gin.H{
			"subject_key": sub.SubjectKey,
			"present":     sub.Present,
			"absent":      sub.Absent,
			"total":       sub.Total,
			"percentage":  sub.Percentage(),
		})
	}
	return gin.H{
		"overall": gin.H{
			"present":    s.Overall.Present,
			"absent":     s.Overall.Absent,
			"total":      s.Overall.Total,
			"percentage": s.Overall.Percentage(),
		},
		"subjects": subjects,
	}
}

// writeErr maps engine errors onto HTTP statuses. "Nothing to
// calculate" is a defined result, not a failure.
func writeErr(c *gin.Context, err error) {
	var invalidDate *model.InvalidDateError
	var inconsistent *model.InconsistentScheduleError
	var upload *model.UploadFailure
	switch {
	case errors.Is(err, model.ErrComputationSkipped):
		c.JSON(http.StatusOK, gin.H{"skipped": true, "reason": err.Error()})
	case errors.As(err, &invalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &inconsistent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, record.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &upload):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
