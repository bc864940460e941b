package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultRetentionPeriodDays keeps records for roughly seven years.
const DefaultRetentionPeriodDays = 2555

// UnknownIPAddress is stored when the request context carries no client address.
const UnknownIPAddress = "unknown"

// ErrImmutableRecord is returned by the store when something tries to modify a persisted record.
var ErrImmutableRecord = errors.New("audit records are append-only")

// ValidationError reports a malformed or incomplete audit record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid audit record: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// AuditLog is one immutable entry of the audit trail. Actor and resource data are snapshots taken
// at write time, never live references.
type AuditLog struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	ActorID    string `gorm:"size:64;not null;index:idx_audit_actor_ts,priority:1" json:"actor_id"`
	ActorRole  Role   `gorm:"size:32;not null;index" json:"actor_role"`
	ActorName  string `gorm:"size:255" json:"actor_name"`
	ActorEmail string `gorm:"size:255" json:"actor_email"`

	Action      Action `gorm:"size:64;not null;index:idx_audit_action_ts,priority:1" json:"action"`
	Description string `gorm:"type:text;not null" json:"description"`

	ResourceType ResourceType `gorm:"size:32;index:idx_audit_resource,priority:1" json:"resource_type,omitempty"`
	ResourceID   string       `gorm:"size:64;index:idx_audit_resource,priority:2" json:"resource_id,omitempty"`
	ResourceName string       `gorm:"size:255" json:"resource_name,omitempty"`

	RelatedStudentID string `gorm:"size:64;index:idx_audit_student_ts,priority:1" json:"related_student_id,omitempty"`
	RelatedClassID   string `gorm:"size:64;index" json:"related_class_id,omitempty"`

	IPAddress      string            `gorm:"column:ip_address;size:64;not null;index" json:"ip_address"`
	UserAgent      string            `gorm:"size:512" json:"user_agent,omitempty"`
	HTTPMethod     string            `gorm:"column:http_method;size:16" json:"http_method,omitempty"`
	RequestURL     string            `gorm:"column:request_url;size:2048" json:"request_url,omitempty"`
	RequestHeaders datatypes.JSONMap `gorm:"column:request_headers;type:json" json:"request_headers,omitempty"`

	BeforeValues  datatypes.JSONMap           `gorm:"type:json" json:"before_values,omitempty"`
	AfterValues   datatypes.JSONMap           `gorm:"type:json" json:"after_values,omitempty"`
	ChangedFields datatypes.JSONSlice[string] `gorm:"type:json" json:"changed_fields,omitempty"`

	Metadata datatypes.JSONMap           `gorm:"type:json" json:"metadata"`
	Tags     datatypes.JSONSlice[string] `gorm:"type:json" json:"tags"`

	RiskLevel        RiskLevel `gorm:"size:16;not null;index:idx_audit_risk,priority:1" json:"risk_level"`
	IsSuspicious     bool      `gorm:"not null;index:idx_audit_risk,priority:2" json:"is_suspicious"`
	SuspiciousReason string    `gorm:"size:512" json:"suspicious_reason,omitempty"`

	Status       Status `gorm:"size:16;not null;index" json:"status"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	ErrorCode    string `gorm:"size:64" json:"error_code,omitempty"`

	IsComplianceRelevant bool           `gorm:"not null" json:"is_compliance_relevant"`
	ComplianceType       ComplianceType `gorm:"size:32" json:"compliance_type,omitempty"`
	RetentionPeriodDays  int            `gorm:"not null" json:"retention_period_days"`
	ExpiresAt            time.Time      `gorm:"not null;index" json:"expires_at"`

	Timestamp time.Time `gorm:"column:occurred_at;not null;index;index:idx_audit_actor_ts,priority:2;index:idx_audit_action_ts,priority:2;index:idx_audit_student_ts,priority:2" json:"timestamp"`

	// RecordedAt is stamped by the store when the insert runs.
	RecordedAt time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
}

// TableName pins the table name.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeUpdate rejects every update: the audit trail is append-only.
func (l *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableRecord
}

// RetentionDeadline is the instant after which the record is eligible for deletion.
func (l AuditLog) RetentionDeadline() time.Time {
	return l.Timestamp.AddDate(0, 0, l.RetentionPeriodDays)
}

// ShouldRetain reports whether the record is still inside its retention window at now.
func (l AuditLog) ShouldRetain(now time.Time) bool {
	return now.Before(l.RetentionDeadline())
}

// Equal compares records by identity.
func (l AuditLog) Equal(other AuditLog) bool {
	return l.ID != "" && l.ID == other.ID
}

// Before orders records by timestamp.
func (l AuditLog) Before(other AuditLog) bool {
	return l.Timestamp.Before(other.Timestamp)
}

// ActorSnapshot describes who performed an action, captured at write time.
type ActorSnapshot struct {
	ID    string `validate:"required,max=64"`
	Role  Role   `validate:"required"`
	Name  string `validate:"max=255"`
	Email string `validate:"max=255"`
}

// ResourceRef identifies the object an action targets.
type ResourceRef struct {
	Type ResourceType
	ID   string
	Name string
}

// RequestSnapshot is the request context attached to a record.
type RequestSnapshot struct {
	IPAddress string
	UserAgent string
	Method    string
	URL       string
	Headers   map[string]interface{}
}

// ChangeSet carries before/after values for update-type actions.
type ChangeSet struct {
	Before        map[string]interface{}
	After         map[string]interface{}
	ChangedFields []string
}

// AuditLogParams is the canonical construction argument set for an audit record.
type AuditLogParams struct {
	Actor                ActorSnapshot
	Action               Action
	Description          string
	Resource             *ResourceRef
	RelatedStudentID     string
	RelatedClassID       string
	Request              RequestSnapshot
	Changes              *ChangeSet
	Metadata             map[string]interface{}
	Tags                 []string
	RiskLevel            RiskLevel
	IsSuspicious         bool
	SuspiciousReason     string
	Status               Status
	ErrorMessage         string
	ErrorCode            string
	IsComplianceRelevant bool
	ComplianceType       ComplianceType
	RetentionPeriodDays  int
	Timestamp            time.Time
}

// NewAuditLog validates params and builds a record ready to persist. It never touches storage.
func NewAuditLog(params AuditLogParams) (AuditLog, error) {
	actorID := strings.TrimSpace(params.Actor.ID)
	if actorID == "" {
		return AuditLog{}, &ValidationError{Field: "actor.id", Reason: "is required"}
	}
	if !params.Actor.Role.IsValid() {
		return AuditLog{}, &ValidationError{Field: "actor.role", Reason: "unknown role " + quote(string(params.Actor.Role))}
	}
	if !params.Action.IsValid() {
		return AuditLog{}, &ValidationError{Field: "action", Reason: "unknown action " + quote(string(params.Action))}
	}

	description := strings.TrimSpace(params.Description)
	if description == "" {
		return AuditLog{}, &ValidationError{Field: "description", Reason: "is required"}
	}

	ip := strings.TrimSpace(params.Request.IPAddress)
	if ip == "" {
		return AuditLog{}, &ValidationError{Field: "request.ipAddress", Reason: "is required"}
	}

	riskLevel := params.RiskLevel
	if riskLevel == "" {
		riskLevel = RiskLow
	}
	if !riskLevel.IsValid() {
		return AuditLog{}, &ValidationError{Field: "riskLevel", Reason: "unknown risk level " + quote(string(riskLevel))}
	}

	status := params.Status
	if status == "" {
		status = StatusSuccess
	}
	if !status.IsValid() {
		return AuditLog{}, &ValidationError{Field: "status", Reason: "unknown status " + quote(string(status))}
	}

	complianceType := params.ComplianceType
	if complianceType == "" && params.IsComplianceRelevant {
		complianceType = ComplianceOther
	}
	if complianceType != "" && !complianceType.IsValid() {
		return AuditLog{}, &ValidationError{Field: "complianceType", Reason: "unknown compliance type " + quote(string(complianceType))}
	}

	retention := params.RetentionPeriodDays
	if retention < 0 {
		return AuditLog{}, &ValidationError{Field: "retentionPeriodDays", Reason: "must not be negative"}
	}
	if retention == 0 {
		retention = DefaultRetentionPeriodDays
	}

	timestamp := params.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	timestamp = timestamp.UTC()

	record := AuditLog{
		ID:                   uuid.NewString(),
		ActorID:              actorID,
		ActorRole:            params.Actor.Role,
		ActorName:            strings.TrimSpace(params.Actor.Name),
		ActorEmail:           strings.TrimSpace(params.Actor.Email),
		Action:               params.Action,
		Description:          description,
		RelatedStudentID:     strings.TrimSpace(params.RelatedStudentID),
		RelatedClassID:       strings.TrimSpace(params.RelatedClassID),
		IPAddress:            ip,
		UserAgent:            params.Request.UserAgent,
		HTTPMethod:           strings.ToUpper(params.Request.Method),
		RequestURL:           params.Request.URL,
		RequestHeaders:       toJSONMap(params.Request.Headers),
		Metadata:             toJSONMap(params.Metadata),
		Tags:                 uniqueTags(params.Tags),
		RiskLevel:            riskLevel,
		IsSuspicious:         params.IsSuspicious,
		SuspiciousReason:     strings.TrimSpace(params.SuspiciousReason),
		Status:               status,
		ErrorMessage:         params.ErrorMessage,
		ErrorCode:            params.ErrorCode,
		IsComplianceRelevant: params.IsComplianceRelevant,
		ComplianceType:       complianceType,
		RetentionPeriodDays:  retention,
		Timestamp:            timestamp,
	}
	record.ExpiresAt = record.RetentionDeadline()

	if params.Resource != nil && (params.Resource.Type != "" || params.Resource.ID != "") {
		if !params.Resource.Type.IsValid() {
			return AuditLog{}, &ValidationError{Field: "resource.type", Reason: "unknown resource type " + quote(string(params.Resource.Type))}
		}
		record.ResourceType = params.Resource.Type
		record.ResourceID = strings.TrimSpace(params.Resource.ID)
		record.ResourceName = strings.TrimSpace(params.Resource.Name)
	}

	if params.Changes != nil {
		record.BeforeValues = toJSONMap(params.Changes.Before)
		record.AfterValues = toJSONMap(params.Changes.After)
		record.ChangedFields = params.Changes.ChangedFields
		if len(record.ChangedFields) == 0 {
			record.ChangedFields = diffFields(params.Changes.Before, params.Changes.After)
		}
	}

	return record, nil
}

func toJSONMap(values map[string]interface{}) datatypes.JSONMap {
	result := datatypes.JSONMap{}
	for key, value := range values {
		result[key] = value
	}
	return result
}

func uniqueTags(tags []string) datatypes.JSONSlice[string] {
	seen := make(map[string]struct{}, len(tags))
	result := make(datatypes.JSONSlice[string], 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func diffFields(before, after map[string]interface{}) datatypes.JSONSlice[string] {
	fields := datatypes.JSONSlice[string]{}
	for key, value := range after {
		previous, ok := before[key]
		if !ok || fmt.Sprint(previous) != fmt.Sprint(value) {
			fields = append(fields, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}
