package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-audit-api/internal/dto"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/repository"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 100
	defaultHistoryCap = 100
	maxHistoryCap     = 1000
)

// ErrAuditLogNotFound is returned when a record id does not exist.
var ErrAuditLogNotFound = repository.ErrAuditLogNotFound

// QueryError reports malformed filter, pagination or sort input.
type QueryError struct {
	Field  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid audit query: %s: %s", e.Field, e.Reason)
}

// IsQueryError reports whether err carries a QueryError.
func IsQueryError(err error) bool {
	var target *QueryError
	return errors.As(err, &target)
}

// AuditQueryService answers filtered, paginated reads over the audit trail.
type AuditQueryService interface {
	Query(ctx context.Context, query dto.AuditLogQuery) (dto.AuditLogListResponse, error)
	GetByID(ctx context.Context, id string, includeSensitive bool) (dto.AuditLogResponse, error)
	ActivityForActor(ctx context.Context, actorID string, start, end *time.Time, limit int) ([]dto.AuditLogResponse, error)
	HistoryForResource(ctx context.Context, resourceType, resourceID string, limit int) ([]dto.AuditLogResponse, error)
	HistoryForStudent(ctx context.Context, studentID string, limit int) ([]dto.AuditLogResponse, error)
}

type auditQueryService struct {
	repo   repository.AuditLogRepository
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAuditQueryService constructs the query service.
func NewAuditQueryService(repo repository.AuditLogRepository, logger zerolog.Logger) AuditQueryService {
	return &auditQueryService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_query_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-audit-api/internal/service/audit_query"),
		now:    time.Now,
	}
}

func (s *auditQueryService) Query(ctx context.Context, query dto.AuditLogQuery) (dto.AuditLogListResponse, error) {
	filter, snapshotAt, err := s.buildFilter(query)
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "audit.query", trace.WithAttributes(
		attribute.Int("audit.page", filter.Page),
		attribute.Int("audit.page_size", filter.PageSize),
		attribute.String("audit.sort", filter.SortColumn),
	))
	defer span.End()

	logs, total, err := s.repo.List(spanCtx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return dto.AuditLogListResponse{}, err
	}

	return dto.AuditLogListResponse{
		Items:      dto.NewAuditLogResponseSlice(logs),
		Pagination: dto.NewPaginationMeta(filter.Page, filter.PageSize, total),
		SnapshotAt: snapshotAt,
	}, nil
}

func (s *auditQueryService) GetByID(ctx context.Context, id string, includeSensitive bool) (dto.AuditLogResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return dto.AuditLogResponse{}, &QueryError{Field: "id", Reason: "is required"}
	}

	log, err := s.repo.FindByID(ctx, id, includeSensitive)
	if err != nil {
		return dto.AuditLogResponse{}, err
	}
	return dto.NewAuditLogResponse(log), nil
}

func (s *auditQueryService) ActivityForActor(ctx context.Context, actorID string, start, end *time.Time, limit int) ([]dto.AuditLogResponse, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, &QueryError{Field: "actorId", Reason: "is required"}
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, &QueryError{Field: "startDate", Reason: "must not be after endDate"}
	}

	return s.history(ctx, repository.AuditLogFilter{ActorID: actorID, StartDate: start, EndDate: end}, limit)
}

func (s *auditQueryService) HistoryForResource(ctx context.Context, resourceType, resourceID string, limit int) ([]dto.AuditLogResponse, error) {
	parsed, err := models.ParseResourceType(resourceType)
	if err != nil {
		return nil, &QueryError{Field: "resourceType", Reason: "unknown resource type " + quoteValue(resourceType)}
	}
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, &QueryError{Field: "resourceId", Reason: "is required"}
	}

	return s.history(ctx, repository.AuditLogFilter{ResourceType: parsed, ResourceID: resourceID}, limit)
}

func (s *auditQueryService) HistoryForStudent(ctx context.Context, studentID string, limit int) ([]dto.AuditLogResponse, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, &QueryError{Field: "studentId", Reason: "is required"}
	}

	return s.history(ctx, repository.AuditLogFilter{RelatedStudentID: studentID}, limit)
}

func (s *auditQueryService) history(ctx context.Context, filter repository.AuditLogFilter, limit int) ([]dto.AuditLogResponse, error) {
	if limit < 0 {
		return nil, &QueryError{Field: "limit", Reason: "must be positive"}
	}
	if limit == 0 {
		limit = defaultHistoryCap
	}
	if limit > maxHistoryCap {
		limit = maxHistoryCap
	}

	filter.Page = 1
	filter.PageSize = limit
	filter.SortColumn = repository.SortableColumns["timestamp"]

	logs, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewAuditLogResponseSlice(logs), nil
}

// buildFilter validates the raw query. Without an explicit end date the query is pinned to a
// snapshot instant which is handed back to the caller.
func (s *auditQueryService) buildFilter(query dto.AuditLogQuery) (repository.AuditLogFilter, *time.Time, error) {
	filter := repository.AuditLogFilter{
		ActorID:              strings.TrimSpace(query.ActorID),
		ResourceID:           strings.TrimSpace(query.ResourceID),
		RelatedStudentID:     strings.TrimSpace(query.RelatedStudentID),
		RelatedClassID:       strings.TrimSpace(query.RelatedClassID),
		IPAddress:            strings.TrimSpace(query.IPAddress),
		IsSuspicious:         query.IsSuspicious,
		IsComplianceRelevant: query.IsComplianceRelevant,
		Search:               strings.TrimSpace(query.Search),
		StartDate:            query.StartDate,
		EndDate:              query.EndDate,
		IncludeSensitive:     query.IncludeSensitive,
	}

	if value := strings.TrimSpace(query.Action); value != "" {
		action, err := models.ParseAction(value)
		if err != nil {
			return filter, nil, &QueryError{Field: "action", Reason: "unknown action " + quoteValue(value)}
		}
		filter.Action = action
	}
	if value := strings.TrimSpace(query.ResourceType); value != "" {
		resourceType, err := models.ParseResourceType(value)
		if err != nil {
			return filter, nil, &QueryError{Field: "resourceType", Reason: "unknown resource type " + quoteValue(value)}
		}
		filter.ResourceType = resourceType
	}
	if value := strings.TrimSpace(query.RiskLevel); value != "" {
		riskLevel, err := models.ParseRiskLevel(value)
		if err != nil {
			return filter, nil, &QueryError{Field: "riskLevel", Reason: "unknown risk level " + quoteValue(value)}
		}
		filter.RiskLevel = riskLevel
	}
	if value := strings.TrimSpace(query.Status); value != "" {
		status, err := models.ParseStatus(value)
		if err != nil {
			return filter, nil, &QueryError{Field: "status", Reason: "unknown status " + quoteValue(value)}
		}
		filter.Status = status
	}
	if value := strings.TrimSpace(query.ComplianceType); value != "" {
		complianceType, err := models.ParseComplianceType(value)
		if err != nil {
			return filter, nil, &QueryError{Field: "complianceType", Reason: "unknown compliance type " + quoteValue(value)}
		}
		filter.ComplianceType = complianceType
	}

	switch {
	case query.Page < 0:
		return filter, nil, &QueryError{Field: "page", Reason: "must be at least 1"}
	case query.Page == 0:
		filter.Page = 1
	default:
		filter.Page = query.Page
	}

	switch {
	case query.Limit < 0:
		return filter, nil, &QueryError{Field: "limit", Reason: "must be positive"}
	case query.Limit == 0:
		filter.PageSize = defaultQueryLimit
	case query.Limit > maxQueryLimit:
		filter.PageSize = maxQueryLimit
	default:
		filter.PageSize = query.Limit
	}

	sortBy := strings.TrimSpace(query.SortBy)
	if sortBy == "" {
		sortBy = "timestamp"
	}
	column, ok := repository.SortableColumns[sortBy]
	if !ok {
		return filter, nil, &QueryError{Field: "sortBy", Reason: "unsupported sort field " + quoteValue(sortBy)}
	}
	filter.SortColumn = column

	switch strings.ToLower(strings.TrimSpace(query.SortOrder)) {
	case "", "desc":
		filter.SortAscending = false
	case "asc":
		filter.SortAscending = true
	default:
		return filter, nil, &QueryError{Field: "sortOrder", Reason: "must be asc or desc"}
	}

	var snapshotAt *time.Time
	if filter.EndDate == nil {
		pinned := s.now().UTC()
		if query.SnapshotAt != nil {
			// Later pages also drop records that were accepted after the first page, whatever their timestamp.
			pinned = query.SnapshotAt.UTC()
			filter.RecordedBefore = &pinned
		}
		snapshotAt = &pinned
		filter.EndDate = &pinned
	}

	if filter.StartDate != nil && filter.StartDate.After(*filter.EndDate) {
		return filter, nil, &QueryError{Field: "startDate", Reason: "must not be after endDate"}
	}

	return filter, snapshotAt, nil
}

func quoteValue(value string) string {
	return "\"" + value + "\""
}
