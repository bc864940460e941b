package dto

import (
	"time"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta derives the page count from the total.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// AuditLogQuery carries raw filters, pagination and sort settings for audit queries.
// Enumerated values are validated by the service.
type AuditLogQuery struct {
	ActorID              string
	Action               string
	ResourceType         string
	ResourceID           string
	RelatedStudentID     string
	RelatedClassID       string
	IPAddress            string
	RiskLevel            string
	IsSuspicious         *bool
	Status               string
	IsComplianceRelevant *bool
	ComplianceType       string
	Search               string
	StartDate            *time.Time
	EndDate              *time.Time
	SnapshotAt           *time.Time

	Page             int
	Limit            int
	SortBy           string
	SortOrder        string
	IncludeSensitive bool
}

// AuditActorResponse is the actor snapshot of a record.
type AuditActorResponse struct {
	ID    string      `json:"id"`
	Role  models.Role `json:"role"`
	Name  string      `json:"name,omitempty"`
	Email string      `json:"email,omitempty"`
}

// AuditResourceResponse is the resource reference of a record.
type AuditResourceResponse struct {
	Type models.ResourceType `json:"type"`
	ID   string              `json:"id,omitempty"`
	Name string              `json:"name,omitempty"`
}

// AuditRequestResponse is the request context of a record.
type AuditRequestResponse struct {
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Method    string                 `json:"method,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Headers   map[string]interface{} `json:"headers,omitempty"`
}

// AuditChangesResponse is the change payload of a record.
type AuditChangesResponse struct {
	Before        map[string]interface{} `json:"before,omitempty"`
	After         map[string]interface{} `json:"after,omitempty"`
	ChangedFields []string               `json:"changed_fields,omitempty"`
}

// AuditLogResponse serializes one audit record.
type AuditLogResponse struct {
	ID                   string                 `json:"id"`
	Actor                AuditActorResponse     `json:"actor"`
	Action               models.Action          `json:"action"`
	Domain               models.Domain          `json:"domain"`
	Description          string                 `json:"description"`
	Resource             *AuditResourceResponse `json:"resource,omitempty"`
	RelatedStudentID     string                 `json:"related_student_id,omitempty"`
	RelatedClassID       string                 `json:"related_class_id,omitempty"`
	Request              AuditRequestResponse   `json:"request"`
	Changes              *AuditChangesResponse  `json:"changes,omitempty"`
	Metadata             map[string]interface{} `json:"metadata"`
	Tags                 []string               `json:"tags"`
	RiskLevel            models.RiskLevel       `json:"risk_level"`
	IsSuspicious         bool                   `json:"is_suspicious"`
	SuspiciousReason     string                 `json:"suspicious_reason,omitempty"`
	Status               models.Status          `json:"status"`
	ErrorMessage         string                 `json:"error_message,omitempty"`
	ErrorCode            string                 `json:"error_code,omitempty"`
	IsComplianceRelevant bool                   `json:"is_compliance_relevant"`
	ComplianceType       models.ComplianceType  `json:"compliance_type,omitempty"`
	RetentionPeriodDays  int                    `json:"retention_period_days"`
	ExpiresAt            time.Time              `json:"expires_at"`
	Timestamp            time.Time              `json:"timestamp"`
}

// AuditLogListResponse wraps a page of audit records. SnapshotAt pins the upper time bound so
// later pages see the same committed prefix.
type AuditLogListResponse struct {
	Items      []AuditLogResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
	SnapshotAt *time.Time         `json:"snapshot_at,omitempty"`
}

// NewAuditLogResponse converts a record into its response shape.
func NewAuditLogResponse(log models.AuditLog) AuditLogResponse {
	response := AuditLogResponse{
		ID: log.ID,
		Actor: AuditActorResponse{
			ID:    log.ActorID,
			Role:  log.ActorRole,
			Name:  log.ActorName,
			Email: log.ActorEmail,
		},
		Action:           log.Action,
		Domain:           log.Action.Domain(),
		Description:      log.Description,
		RelatedStudentID: log.RelatedStudentID,
		RelatedClassID:   log.RelatedClassID,
		Request: AuditRequestResponse{
			IPAddress: log.IPAddress,
			UserAgent: log.UserAgent,
			Method:    log.HTTPMethod,
			URL:       log.RequestURL,
			Headers:   map[string]interface{}(log.RequestHeaders),
		},
		Metadata:             map[string]interface{}(log.Metadata),
		Tags:                 []string(log.Tags),
		RiskLevel:            log.RiskLevel,
		IsSuspicious:         log.IsSuspicious,
		SuspiciousReason:     log.SuspiciousReason,
		Status:               log.Status,
		ErrorMessage:         log.ErrorMessage,
		ErrorCode:            log.ErrorCode,
		IsComplianceRelevant: log.IsComplianceRelevant,
		ComplianceType:       log.ComplianceType,
		RetentionPeriodDays:  log.RetentionPeriodDays,
		ExpiresAt:            log.ExpiresAt,
		Timestamp:            log.Timestamp,
	}

	if response.Metadata == nil {
		response.Metadata = map[string]interface{}{}
	}
	if response.Tags == nil {
		response.Tags = []string{}
	}
	if log.ResourceType != "" {
		response.Resource = &AuditResourceResponse{Type: log.ResourceType, ID: log.ResourceID, Name: log.ResourceName}
	}
	if len(log.BeforeValues) > 0 || len(log.AfterValues) > 0 || len(log.ChangedFields) > 0 {
		response.Changes = &AuditChangesResponse{
			Before:        map[string]interface{}(log.BeforeValues),
			After:         map[string]interface{}(log.AfterValues),
			ChangedFields: []string(log.ChangedFields),
		}
	}

	return response
}

// NewAuditLogResponseSlice converts a slice of records.
func NewAuditLogResponseSlice(logs []models.AuditLog) []AuditLogResponse {
	result := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		result = append(result, NewAuditLogResponse(log))
	}
	return result
}

// AuditLogCreateRequest is the payload of a manually recorded audit entry. The actor is taken from the
// authenticated session.
type AuditLogCreateRequest struct {
	Action               string                 `json:"action" validate:"required"`
	Description          string                 `json:"description" validate:"required,max=1000"`
	ResourceType         string                 `json:"resource_type" validate:"omitempty,max=32"`
	ResourceID           string                 `json:"resource_id" validate:"omitempty,max=64"`
	ResourceName         string                 `json:"resource_name" validate:"omitempty,max=255"`
	RelatedStudentID     string                 `json:"related_student_id" validate:"omitempty,max=64"`
	RelatedClassID       string                 `json:"related_class_id" validate:"omitempty,max=64"`
	Metadata             map[string]interface{} `json:"metadata"`
	Tags                 []string               `json:"tags" validate:"omitempty,max=20,dive,max=64"`
	RiskLevel            string                 `json:"risk_level" validate:"omitempty,oneof=Low Medium High Critical"`
	IsSuspicious         bool                   `json:"is_suspicious"`
	SuspiciousReason     string                 `json:"suspicious_reason" validate:"omitempty,max=512"`
	Status               string                 `json:"status" validate:"omitempty,oneof=Success Failed Partial Warning"`
	ErrorMessage         string                 `json:"error_message"`
	ErrorCode            string                 `json:"error_code" validate:"omitempty,max=64"`
	IsComplianceRelevant bool                   `json:"is_compliance_relevant"`
	ComplianceType       string                 `json:"compliance_type" validate:"omitempty,oneof=GDPR FERPA DataProtection Privacy Other"`
	RetentionPeriodDays  int                    `json:"retention_period_days" validate:"omitempty,min=1"`
}

// RoleActivityResponse counts events and distinct actors for one role.
type RoleActivityResponse struct {
	Role           models.Role `json:"role"`
	Events         int64       `json:"events"`
	DistinctActors int64       `json:"distinct_actors"`
}

// ActionCountResponse is one entry of the action frequency distribution.
type ActionCountResponse struct {
	Action         models.Action `json:"action"`
	Events         int64         `json:"events"`
	DistinctActors int64         `json:"distinct_actors"`
}

// RiskCountResponse is one entry of the risk-level distribution.
type RiskCountResponse struct {
	RiskLevel models.RiskLevel `json:"risk_level"`
	Events    int64            `json:"events"`
}

// DailyCountResponse is one point of a per-day activity curve.
type DailyCountResponse struct {
	Date   string `json:"date"`
	Events int64  `json:"events"`
}

// ActionTimelineResponse is the per-day curve of one action.
type ActionTimelineResponse struct {
	Action         models.Action        `json:"action"`
	Total          int64                `json:"total"`
	DistinctActors int64                `json:"distinct_actors"`
	Days           []DailyCountResponse `json:"days"`
}

// AuditStatisticsResponse summarises a trailing window of audit activity. To and GeneratedAt are the
// instant the figures were computed, not the request time: a cached response keeps them until it expires.
type AuditStatisticsResponse struct {
	WindowDays           int                      `json:"window_days"`
	From                 time.Time                `json:"from"`
	To                   time.Time                `json:"to"`
	TotalEvents          int64                    `json:"total_events"`
	SuspiciousEventCount int64                    `json:"suspicious_event_count"`
	FailedEventCount     int64                    `json:"failed_event_count"`
	RoleActivity         []RoleActivityResponse   `json:"role_activity"`
	ActionDistribution   []ActionCountResponse    `json:"action_distribution"`
	RiskDistribution     []RiskCountResponse      `json:"risk_distribution"`
	ActionTimeline       []ActionTimelineResponse `json:"action_timeline"`
	GeneratedAt          time.Time                `json:"generated_at"`
	CacheHit             bool                     `json:"cache_hit"`
}

// FlaggedIPResponse is a source address with repeated failed sign-ins.
type FlaggedIPResponse struct {
	IPAddress            string   `json:"ip_address"`
	FailedAttempts       int64    `json:"failed_attempts"`
	AttemptedIdentifiers []string `json:"attempted_identifiers"`
}

// FlaggedActorResponse is an actor with an abnormal volume of read access.
type FlaggedActorResponse struct {
	ActorID     string      `json:"actor_id"`
	ActorRole   models.Role `json:"actor_role"`
	ActorName   string      `json:"actor_name,omitempty"`
	AccessCount int64       `json:"access_count"`
	ResourceIDs []string    `json:"resource_ids"`
}

// AnomalyReportResponse is a point-in-time anomaly scan.
type AnomalyReportResponse struct {
	FlaggedIPs    []FlaggedIPResponse    `json:"flagged_ips"`
	FlaggedActors []FlaggedActorResponse `json:"flagged_actors"`
	WindowStart   time.Time              `json:"window_start"`
	ComputedAt    time.Time              `json:"computed_at"`
}

// RetentionSweepResponse reports one retention sweep.
type RetentionSweepResponse struct {
	Deleted int64     `json:"deleted"`
	SweptAt time.Time `json:"swept_at"`
}
