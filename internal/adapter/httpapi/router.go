// Package httpapi exposes health checks and a read-only view of pending
// reminders over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/shared"
)

// Scheduler is the part of scheduler.Scheduler the API reads from.
type Scheduler interface {
	IsRunning() bool
	Ping(ctx context.Context) error
	JobsForUser(ctx context.Context, user string) ([]*scheduler.Job, error)
}

// JobView is one pending reminder.
type JobView struct {
	ID          string     `json:"id"`
	TaskName    string     `json:"task_name"`
	NextRunTime *time.Time `json:"next_run_time"`
}

type jobsQuery struct {
	User string `form:"user" binding:"required,numeric,max=20"`
}

// NewRouter builds the gin engine.
func NewRouter(s Scheduler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if !s.IsRunning() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": shared.UserMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/jobs", func(c *gin.Context) {
		var q jobsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user must be a numeric Discord id"})
			return
		}
		jobs, err := s.JobsForUser(c.Request.Context(), q.User)
		if err != nil {
			logger.Warn("Listing jobs failed", "user", q.User, "error", err)
			c.JSON(statusFor(err), gin.H{"error": shared.UserMessage(err)})
			return
		}
		scheduler.SortByRunTime(jobs)
		out := make([]JobView, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, JobView{ID: j.ID, TaskName: j.Kwargs[scheduler.KwargTaskName], NextRunTime: j.NextRunTime})
		}
		c.JSON(http.StatusOK, out)
	})

	return r
}

func statusFor(err error) int {
	switch scheduler.Classify(err) {
	case shared.KindDependencyFailure, shared.KindTimeout:
		return http.StatusServiceUnavailable
	case shared.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"dur", time.Since(start),
		)
	}
}
