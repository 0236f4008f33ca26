package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gunnchOS3k/arcade-core/internal/compliance"
	jobmetrics "github.com/gunnchOS3k/arcade-core/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ComplianceAssessJob re-runs framework assessments on a schedule so the
// posture reported by the API never goes stale.
type ComplianceAssessJob struct {
	Engine  *compliance.Engine
	Cache   *compliance.ReportCache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewComplianceAssessJob initialises the assessment handler.
func NewComplianceAssessJob(engine *compliance.Engine, cache *compliance.ReportCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *ComplianceAssessJob {
	return &ComplianceAssessJob{Engine: engine, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the assessment run.
func (j *ComplianceAssessJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("compliance assess: handler not configured")
	}
	var payload ComplianceAssessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskComplianceAssess)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	names := []string{payload.Framework}
	if payload.Framework == "" {
		names = j.Engine.FrameworkNames()
	}

	start := time.Now()
	logger := j.logger()
	for _, name := range names {
		fw, err := j.Engine.Assess(ctx, name)
		if err != nil {
			resultErr = err
			logger.Error("assessment failed", slog.String("framework", name), slog.Any("error", err))
			return resultErr
		}
		logger.Info("framework assessed",
			slog.String("framework", name),
			slog.String("status", string(fw.Status)),
		)
	}

	if err := j.Cache.Invalidate(ctx); err != nil {
		logger.Warn("report cache invalidate", slog.Any("error", err))
	}

	logger.Info("completed assessment run",
		slog.Int("frameworks", len(names)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ComplianceAssessJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskComplianceAssess))
	}
	return slog.Default().With(slog.String("job", TaskComplianceAssess))
}

func (j *ComplianceAssessJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
