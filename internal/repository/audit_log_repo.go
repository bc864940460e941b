package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// ErrAuditLogNotFound is returned when a record id does not exist.
var ErrAuditLogNotFound = errors.New("audit log not found")

// PersistenceError wraps a failure of the durable store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// SortableColumns maps public sort keys to audit_logs columns.
var SortableColumns = map[string]string{
	"timestamp":    "occurred_at",
	"action":       "action",
	"actorId":      "actor_id",
	"actorRole":    "actor_role",
	"resourceType": "resource_type",
	"riskLevel":    "risk_level",
	"status":       "status",
	"ipAddress":    "ip_address",
}

// sensitiveColumns are excluded from default projections.
var sensitiveColumns = []string{"request_headers", "before_values", "after_values"}

// AuditLogFilter narrows audit log queries. Every set field is combined with AND. RecordedBefore bounds
// the instant the store accepted a record rather than its timestamp.
type AuditLogFilter struct {
	ActorID              string
	Action               models.Action
	ResourceType         models.ResourceType
	ResourceID           string
	RelatedStudentID     string
	RelatedClassID       string
	IPAddress            string
	RiskLevel            models.RiskLevel
	IsSuspicious         *bool
	Status               models.Status
	IsComplianceRelevant *bool
	ComplianceType       models.ComplianceType
	Search               string
	StartDate            *time.Time
	EndDate              *time.Time
	RecordedBefore       *time.Time

	Page             int
	PageSize         int
	SortColumn       string
	SortAscending    bool
	IncludeSensitive bool
}

// AuditLogRepository persists and reads the append-only audit trail.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	FindByID(ctx context.Context, id string, includeSensitive bool) (models.AuditLog, error)
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error)
	Count(ctx context.Context, filter AuditLogFilter) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository constructs the audit log repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.RecordedAt = r.db.NowFunc().UTC()
	return persistenceError("create", r.db.WithContext(ctx).Create(entry).Error)
}

func (r *auditLogRepository) FindByID(ctx context.Context, id string, includeSensitive bool) (models.AuditLog, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if !includeSensitive {
		query = query.Omit(sensitiveColumns...)
	}

	var entry models.AuditLog
	if err := query.Where("id = ?", id).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AuditLog{}, ErrAuditLogNotFound
		}
		return models.AuditLog{}, persistenceError("find", err)
	}
	return entry, nil
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := applyAuditFilter(r.db.WithContext(ctx).Model(&models.AuditLog{}), filter)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, persistenceError("count", err)
	}

	if !filter.IncludeSensitive {
		query = query.Omit(sensitiveColumns...)
	}

	column := filter.SortColumn
	if _, ok := sortableColumnSet[column]; !ok {
		column = "occurred_at"
	}
	desc := !filter.SortAscending
	query = query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, persistenceError("list", err)
	}

	return entries, total, nil
}

func (r *auditLogRepository) Count(ctx context.Context, filter AuditLogFilter) (int64, error) {
	var total int64
	err := applyAuditFilter(r.db.WithContext(ctx).Model(&models.AuditLog{}), filter).Count(&total).Error
	return total, persistenceError("count", err)
}

func (r *auditLogRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, persistenceError("delete_expired", result.Error)
	}
	return result.RowsAffected, nil
}

var sortableColumnSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SortableColumns))
	for _, column := range SortableColumns {
		set[column] = struct{}{}
	}
	return set
}()

func applyAuditFilter(query *gorm.DB, filter AuditLogFilter) *gorm.DB {
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.RelatedStudentID != "" {
		query = query.Where("related_student_id = ?", filter.RelatedStudentID)
	}
	if filter.RelatedClassID != "" {
		query = query.Where("related_class_id = ?", filter.RelatedClassID)
	}
	if filter.IPAddress != "" {
		query = query.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.RiskLevel != "" {
		query = query.Where("risk_level = ?", filter.RiskLevel)
	}
	if filter.IsSuspicious != nil {
		query = query.Where("is_suspicious = ?", *filter.IsSuspicious)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.IsComplianceRelevant != nil {
		query = query.Where("is_compliance_relevant = ?", *filter.IsComplianceRelevant)
	}
	if filter.ComplianceType != "" {
		query = query.Where("compliance_type = ?", filter.ComplianceType)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("(LOWER(description) LIKE ? OR LOWER(resource_name) LIKE ? OR LOWER(error_message) LIKE ?)", like, like, like)
	}
	if filter.StartDate != nil {
		query = query.Where("occurred_at >= ?", filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query = query.Where("occurred_at <= ?", filter.EndDate.UTC())
	}
	if filter.RecordedBefore != nil {
		query = query.Where("recorded_at <= ?", filter.RecordedBefore.UTC())
	}
	return query
}
