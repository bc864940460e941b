package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-audit-api/internal/dto"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/observability"
	"github.com/noah-isme/gema-audit-api/internal/repository"
)

const maxStatisticsWindowDays = 3650

// StatisticsConfig tunes the aggregator.
type StatisticsConfig struct {
	DefaultWindowDays int
	TopActions        int
	CacheTTL          time.Duration
}

// AuditStatisticsService rolls the audit trail up over a trailing window.
type AuditStatisticsService interface {
	Statistics(ctx context.Context, windowDays int) (dto.AuditStatisticsResponse, error)
}

type auditStatisticsService struct {
	repo   repository.AuditAnalyticsRepository
	cache  *redis.Client
	config StatisticsConfig
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAuditStatisticsService constructs the aggregator. cache may be nil.
func NewAuditStatisticsService(repo repository.AuditAnalyticsRepository, cache *redis.Client, cfg StatisticsConfig, logger zerolog.Logger) AuditStatisticsService {
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 30
	}
	if cfg.TopActions <= 0 {
		cfg.TopActions = 10
	}

	return &auditStatisticsService{
		repo:   repo,
		cache:  cache,
		config: cfg,
		logger: logger.With().Str("component", "audit_statistics_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-audit-api/internal/service/audit_statistics"),
		now:    time.Now,
	}
}

func (s *auditStatisticsService) Statistics(ctx context.Context, windowDays int) (dto.AuditStatisticsResponse, error) {
	if windowDays == 0 {
		windowDays = s.config.DefaultWindowDays
	}
	if windowDays < 0 || windowDays > maxStatisticsWindowDays {
		return dto.AuditStatisticsResponse{}, &QueryError{Field: "windowDays", Reason: fmt.Sprintf("must be between 1 and %d", maxStatisticsWindowDays)}
	}

	cacheKey := fmt.Sprintf("audit:statistics:%d:%d", windowDays, s.config.TopActions)
	ctx, span := s.tracer.Start(ctx, "audit.statistics", trace.WithAttributes(
		attribute.Int("audit.window_days", windowDays),
		attribute.String("audit.cache_key", cacheKey),
	))
	defer span.End()

	if cached, ok := s.readCache(ctx, span, cacheKey); ok {
		return cached, nil
	}

	until := s.now().UTC()
	since := until.AddDate(0, 0, -windowDays)

	var (
		totals   repository.AuditTotals
		roles    []repository.RoleActivityRow
		actions  []repository.ActionCountRow
		risks    []repository.RiskCountRow
		daily    []repository.ActionDayRow
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		totals, err = s.repo.Totals(groupCtx, since, until)
		return err
	})
	group.Go(func() error {
		var err error
		roles, err = s.repo.RoleActivity(groupCtx, since, until)
		return err
	})
	group.Go(func() error {
		var err error
		actions, err = s.repo.ActionCounts(groupCtx, since, until)
		return err
	})
	group.Go(func() error {
		var err error
		risks, err = s.repo.RiskCounts(groupCtx, since, until)
		return err
	})
	group.Go(func() error {
		var err error
		daily, err = s.repo.ActionDailyCounts(groupCtx, since, until)
		return err
	})

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics_failed")
		return dto.AuditStatisticsResponse{}, err
	}

	response := dto.AuditStatisticsResponse{
		WindowDays:           windowDays,
		From:                 since,
		To:                   until,
		TotalEvents:          totals.Total,
		SuspiciousEventCount: totals.Suspicious,
		FailedEventCount:     totals.Failed,
		RoleActivity:         buildRoleActivity(roles),
		ActionDistribution:   topActions(actions, s.config.TopActions),
		RiskDistribution:     buildRiskDistribution(risks),
		ActionTimeline:       buildActionTimeline(daily, actions),
		GeneratedAt:          until,
	}
	span.SetAttributes(attribute.Int64("audit.total_events", response.TotalEvents))

	s.writeCache(ctx, span, cacheKey, response)
	return response, nil
}

func (s *auditStatisticsService) readCache(ctx context.Context, span trace.Span, key string) (dto.AuditStatisticsResponse, bool) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return dto.AuditStatisticsResponse{}, false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read statistics cache")
			span.RecordError(err)
		}
		observability.AuditStatisticsCache().WithLabelValues("miss").Inc()
		return dto.AuditStatisticsResponse{}, false
	}

	var response dto.AuditStatisticsResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		observability.AuditStatisticsCache().WithLabelValues("miss").Inc()
		return dto.AuditStatisticsResponse{}, false
	}

	observability.AuditStatisticsCache().WithLabelValues("hit").Inc()
	span.SetAttributes(attribute.Bool("audit.cache_hit", true))
	response.CacheHit = true
	return response, true
}

func (s *auditStatisticsService) writeCache(ctx context.Context, span trace.Span, key string, response dto.AuditStatisticsResponse) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store statistics cache")
		span.RecordError(err)
	}
}

func buildRoleActivity(rows []repository.RoleActivityRow) []dto.RoleActivityResponse {
	result := make([]dto.RoleActivityResponse, 0, len(rows))
	for _, row := range rows {
		result = append(result, dto.RoleActivityResponse{Role: row.Role, Events: row.Events, DistinctActors: row.Actors})
	}
	return result
}

// topActions orders by count descending, ties by action code, and keeps the first limit entries.
func topActions(rows []repository.ActionCountRow, limit int) []dto.ActionCountResponse {
	sorted := append([]repository.ActionCountRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Events != sorted[j].Events {
			return sorted[i].Events > sorted[j].Events
		}
		return sorted[i].Action < sorted[j].Action
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	result := make([]dto.ActionCountResponse, 0, len(sorted))
	for _, row := range sorted {
		result = append(result, dto.ActionCountResponse{Action: row.Action, Events: row.Events, DistinctActors: row.Actors})
	}
	return result
}

func buildRiskDistribution(rows []repository.RiskCountRow) []dto.RiskCountResponse {
	sorted := append([]repository.RiskCountRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RiskLevel < sorted[j].RiskLevel })

	result := make([]dto.RiskCountResponse, 0, len(sorted))
	for _, row := range sorted {
		result = append(result, dto.RiskCountResponse{RiskLevel: row.RiskLevel, Events: row.Events})
	}
	return result
}

// buildActionTimeline rolls the per-day counts up per action. Distinct actors come from the action counts,
// since they cannot be summed across days.
func buildActionTimeline(days []repository.ActionDayRow, actions []repository.ActionCountRow) []dto.ActionTimelineResponse {
	actors := make(map[models.Action]int64, len(actions))
	for _, row := range actions {
		actors[row.Action] = row.Actors
	}

	byAction := map[models.Action]*dto.ActionTimelineResponse{}
	for _, row := range days {
		timeline, ok := byAction[row.Action]
		if !ok {
			timeline = &dto.ActionTimelineResponse{Action: row.Action, DistinctActors: actors[row.Action]}
			byAction[row.Action] = timeline
		}
		timeline.Total += row.Events
		timeline.Days = append(timeline.Days, dto.DailyCountResponse{Date: row.EventDay, Events: row.Events})
	}

	result := make([]dto.ActionTimelineResponse, 0, len(byAction))
	for _, timeline := range byAction {
		sort.Slice(timeline.Days, func(i, j int) bool { return timeline.Days[i].Date < timeline.Days[j].Date })
		result = append(result, *timeline)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Total != result[j].Total {
			return result[i].Total > result[j].Total
		}
		return result[i].Action < result[j].Action
	})
	return result
}
