package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
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

// AnomalyConfig holds the heuristics' thresholds and scan window.
type AnomalyConfig struct {
	Window               time.Duration
	FailedLoginThreshold int
	BulkAccessThreshold  int
}

// AuditAnomalyService scans recent events for credential stuffing and bulk data access.
type AuditAnomalyService interface {
	DetectAnomalies(ctx context.Context) (dto.AnomalyReportResponse, error)
}

type auditAnomalyService struct {
	repo   repository.AuditAnalyticsRepository
	config AnomalyConfig
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAuditAnomalyService constructs the detector.
func NewAuditAnomalyService(repo repository.AuditAnalyticsRepository, cfg AnomalyConfig, logger zerolog.Logger) AuditAnomalyService {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.BulkAccessThreshold <= 0 {
		cfg.BulkAccessThreshold = 100
	}

	return &auditAnomalyService{
		repo:   repo,
		config: cfg,
		logger: logger.With().Str("component", "audit_anomaly_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-audit-api/internal/service/audit_anomaly"),
		now:    time.Now,
	}
}

func (s *auditAnomalyService) DetectAnomalies(ctx context.Context) (dto.AnomalyReportResponse, error) {
	ctx, span := s.tracer.Start(ctx, "audit.detect_anomalies", trace.WithAttributes(
		attribute.String("audit.window", s.config.Window.String()),
		attribute.Int("audit.failed_login_threshold", s.config.FailedLoginThreshold),
		attribute.Int("audit.bulk_access_threshold", s.config.BulkAccessThreshold),
	))
	defer span.End()

	computedAt := s.now().UTC()
	since := computedAt.Add(-s.config.Window)

	flaggedIPs, err := s.credentialStuffing(ctx, since, computedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed_login_scan_failed")
		return dto.AnomalyReportResponse{}, err
	}

	flaggedActors, err := s.bulkAccess(ctx, since, computedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk_access_scan_failed")
		return dto.AnomalyReportResponse{}, err
	}

	observability.AuditAnomaliesFlagged().WithLabelValues("failed_login_ip").Set(float64(len(flaggedIPs)))
	observability.AuditAnomaliesFlagged().WithLabelValues("bulk_access_actor").Set(float64(len(flaggedActors)))
	span.SetAttributes(
		attribute.Int("audit.flagged_ips", len(flaggedIPs)),
		attribute.Int("audit.flagged_actors", len(flaggedActors)),
	)

	if len(flaggedIPs) > 0 || len(flaggedActors) > 0 {
		s.logger.Warn().
			Int("flagged_ips", len(flaggedIPs)).
			Int("flagged_actors", len(flaggedActors)).
			Msg("anomaly scan flagged suspicious activity")
	}

	return dto.AnomalyReportResponse{
		FlaggedIPs:    flaggedIPs,
		FlaggedActors: flaggedActors,
		WindowStart:   since,
		ComputedAt:    computedAt,
	}, nil
}

func (s *auditAnomalyService) credentialStuffing(ctx context.Context, since, until time.Time) ([]dto.FlaggedIPResponse, error) {
	attempts, err := s.repo.FailedLoginsByIP(ctx, since, until, s.config.FailedLoginThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed logins by ip: %w", err)
	}
	if len(attempts) == 0 {
		return []dto.FlaggedIPResponse{}, nil
	}

	ips := make([]string, 0, len(attempts))
	for _, row := range attempts {
		ips = append(ips, row.IPAddress)
	}

	logins, err := s.repo.FailedLogins(ctx, since, until, ips)
	if err != nil {
		return nil, fmt.Errorf("failed login identifiers: %w", err)
	}

	identifiers := map[string]map[string]struct{}{}
	for _, login := range logins {
		identifier := attemptedIdentifier(login)
		if identifier == "" {
			continue
		}
		if identifiers[login.IPAddress] == nil {
			identifiers[login.IPAddress] = map[string]struct{}{}
		}
		identifiers[login.IPAddress][identifier] = struct{}{}
	}

	result := make([]dto.FlaggedIPResponse, 0, len(attempts))
	for _, row := range attempts {
		result = append(result, dto.FlaggedIPResponse{
			IPAddress:            row.IPAddress,
			FailedAttempts:       row.Attempts,
			AttemptedIdentifiers: sortedKeys(identifiers[row.IPAddress]),
		})
	}
	return result, nil
}

func (s *auditAnomalyService) bulkAccess(ctx context.Context, since, until time.Time) ([]dto.FlaggedActorResponse, error) {
	actions := models.ReadAccessActions()
	actors, err := s.repo.ReadAccessByActor(ctx, since, until, actions, s.config.BulkAccessThreshold)
	if err != nil {
		return nil, fmt.Errorf("read access by actor: %w", err)
	}
	if len(actors) == 0 {
		return []dto.FlaggedActorResponse{}, nil
	}

	actorIDs := make([]string, 0, len(actors))
	for _, row := range actors {
		actorIDs = append(actorIDs, row.ActorID)
	}

	resources, err := s.repo.ReadAccessResources(ctx, since, until, actions, actorIDs)
	if err != nil {
		return nil, fmt.Errorf("read access resources: %w", err)
	}

	touched := map[string]map[string]struct{}{}
	for _, row := range resources {
		if touched[row.ActorID] == nil {
			touched[row.ActorID] = map[string]struct{}{}
		}
		touched[row.ActorID][row.ResourceID] = struct{}{}
	}

	result := make([]dto.FlaggedActorResponse, 0, len(actors))
	for _, row := range actors {
		result = append(result, dto.FlaggedActorResponse{
			ActorID:     row.ActorID,
			ActorRole:   row.ActorRole,
			ActorName:   row.ActorName,
			AccessCount: row.Events,
			ResourceIDs: sortedKeys(touched[row.ActorID]),
		})
	}
	return result, nil
}

// attemptedIdentifier prefers the identifier typed at sign-in over the resolved actor.
func attemptedIdentifier(row repository.FailedLoginRow) string {
	if value, ok := row.Metadata["attemptedIdentifier"].(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	if row.ActorEmail != "" {
		return row.ActorEmail
	}
	return row.ActorID
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
