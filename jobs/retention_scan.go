package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gunnchOS3k/arcade-core/internal/compliance"
	jobmetrics "github.com/gunnchOS3k/arcade-core/internal/jobs"
)

// categoryTables maps retention data categories onto the tables that hold
// them. Categories without a local table belong to other services and are
// skipped.
var categoryTables = map[string]string{
	"audit_logs":      "audit_events",
	"security_events": "security_events",
	"agent_actions":   "agent_actions",
}

// RetentionScanJob counts rows that have outlived their retention policy
// and schedules deletion for the affected categories. The scan itself
// never deletes; erasure stays an audited, explicit step.
type RetentionScanJob struct {
	Pool    *pgxpool.Pool
	Engine  *compliance.Engine
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRetentionScanJob initialises the retention scan handler.
func NewRetentionScanJob(pool *pgxpool.Pool, engine *compliance.Engine, logger *slog.Logger, metrics *jobmetrics.Metrics) *RetentionScanJob {
	return &RetentionScanJob{
		Pool:    pool,
		Engine:  engine,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the retention scan.
func (j *RetentionScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Engine == nil {
		return errors.New("retention scan: handler not configured")
	}
	var payload RetentionScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRetentionScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	categories := payload.DataCategories
	if len(categories) == 0 {
		for category := range categoryTables {
			categories = append(categories, category)
		}
	}

	start := j.now()
	logger := j.logger()
	scanned := 0
	for _, category := range categories {
		table, ok := categoryTables[category]
		if !ok {
			logger.Warn("no local table for data category", slog.String("data_category", category))
			continue
		}
		policy, ok := j.Engine.RetentionPolicyFor(category)
		if !ok {
			logger.Warn("no retention policy", slog.String("data_category", category))
			continue
		}
		cutoff := start.AddDate(0, 0, -policy.RetentionDays)
		overdue, err := j.countOverdue(ctx, table, cutoff)
		if err != nil {
			resultErr = err
			logger.Error("scan failed", slog.String("data_category", category), slog.Any("error", err))
			return resultErr
		}
		j.metrics().SetOverdueRows(category, overdue)
		scanned++
		if overdue == 0 {
			continue
		}
		logger.Info("rows past retention",
			slog.String("data_category", category),
			slog.Int64("overdue", overdue),
			slog.Time("cutoff", cutoff),
		)
		if _, err := j.Engine.ScheduleDeletion(ctx, category); err != nil {
			resultErr = err
			logger.Error("schedule deletion failed", slog.String("data_category", category), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed retention scan",
		slog.Int("categories", scanned),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *RetentionScanJob) countOverdue(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	var count int64
	// Table names come from the static categoryTables map, never from input.
	err := j.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE at < $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (j *RetentionScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRetentionScan))
	}
	return slog.Default().With(slog.String("job", TaskRetentionScan))
}

func (j *RetentionScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RetentionScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
