package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-audit-api/internal/dto"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/observability"
	"github.com/noah-isme/gema-audit-api/internal/repository"
)

// AuditRetentionService deletes records past their retention deadline.
type AuditRetentionService interface {
	Sweep(ctx context.Context) (dto.RetentionSweepResponse, error)
	Run(ctx context.Context)
	IsRetained(log models.AuditLog) bool
}

type auditRetentionService struct {
	repo     repository.AuditLogRepository
	interval time.Duration
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAuditRetentionService constructs the retention manager.
func NewAuditRetentionService(repo repository.AuditLogRepository, interval time.Duration, logger zerolog.Logger) AuditRetentionService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &auditRetentionService{
		repo:     repo,
		interval: interval,
		logger:   logger.With().Str("component", "audit_retention_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-audit-api/internal/service/audit_retention"),
		now:      time.Now,
	}
}

func (s *auditRetentionService) IsRetained(log models.AuditLog) bool {
	return log.ShouldRetain(s.now())
}

func (s *auditRetentionService) Sweep(ctx context.Context) (dto.RetentionSweepResponse, error) {
	ctx, span := s.tracer.Start(ctx, "audit.retention_sweep")
	defer span.End()

	sweptAt := s.now().UTC()
	deleted, err := s.repo.DeleteExpired(ctx, sweptAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retention_sweep_failed")
		return dto.RetentionSweepResponse{}, err
	}

	span.SetAttributes(attribute.Int64("audit.deleted", deleted))
	observability.AuditRetentionDeleted().Add(float64(deleted))
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("swept_at", sweptAt).Msg("expired audit records removed")
	}

	return dto.RetentionSweepResponse{Deleted: deleted, SweptAt: sweptAt}, nil
}

// Run sweeps once immediately and then on every interval until ctx is cancelled.
func (s *auditRetentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("retention sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
