package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// AuditTotals holds the headline counters of a window.
type AuditTotals struct {
	Total      int64
	Suspicious int64
	Failed     int64
}

// RoleActivityRow counts events and distinct actors per actor role.
type RoleActivityRow struct {
	Role   models.Role
	Events int64
	Actors int64
}

// ActionCountRow counts events and distinct actors per action.
type ActionCountRow struct {
	Action models.Action
	Events int64
	Actors int64
}

// RiskCountRow counts events per risk level.
type RiskCountRow struct {
	RiskLevel models.RiskLevel
	Events    int64
}

// ActionDayRow counts events per action and UTC calendar day (YYYY-MM-DD).
type ActionDayRow struct {
	Action   models.Action
	EventDay string
	Events   int64
}

// IPAttemptRow counts failed logins per source address.
type IPAttemptRow struct {
	IPAddress string
	Attempts  int64
}

// FailedLoginRow is one failed login used to list attempted identifiers.
type FailedLoginRow struct {
	IPAddress  string
	ActorID    string
	ActorEmail string
	Metadata   datatypes.JSONMap
}

// ActorAccessRow counts read-class events per actor.
type ActorAccessRow struct {
	ActorID   string
	ActorRole models.Role
	ActorName string
	Events    int64
}

// ActorResourceRow is one distinct resource touched by an actor.
type ActorResourceRow struct {
	ActorID      string
	ResourceType models.ResourceType
	ResourceID   string
}

// AuditAnalyticsRepository supplies aggregates and scans over a time window. Windows are inclusive on both ends.
type AuditAnalyticsRepository interface {
	Totals(ctx context.Context, since, until time.Time) (AuditTotals, error)
	RoleActivity(ctx context.Context, since, until time.Time) ([]RoleActivityRow, error)
	ActionCounts(ctx context.Context, since, until time.Time) ([]ActionCountRow, error)
	RiskCounts(ctx context.Context, since, until time.Time) ([]RiskCountRow, error)
	ActionDailyCounts(ctx context.Context, since, until time.Time) ([]ActionDayRow, error)
	FailedLoginsByIP(ctx context.Context, since, until time.Time, threshold int) ([]IPAttemptRow, error)
	FailedLogins(ctx context.Context, since, until time.Time, ips []string) ([]FailedLoginRow, error)
	ReadAccessByActor(ctx context.Context, since, until time.Time, actions []models.Action, threshold int) ([]ActorAccessRow, error)
	ReadAccessResources(ctx context.Context, since, until time.Time, actions []models.Action, actorIDs []string) ([]ActorResourceRow, error)
}

type auditAnalyticsRepository struct {
	db *gorm.DB
}

// NewAuditAnalyticsRepository constructs the analytics repository.
func NewAuditAnalyticsRepository(db *gorm.DB) AuditAnalyticsRepository {
	return &auditAnalyticsRepository{db: db}
}

func (r *auditAnalyticsRepository) window(ctx context.Context, since, until time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("occurred_at >= ? AND occurred_at <= ?", since.UTC(), until.UTC())
}

func (r *auditAnalyticsRepository) Totals(ctx context.Context, since, until time.Time) (AuditTotals, error) {
	var totals AuditTotals
	err := r.window(ctx, since, until).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN is_suspicious THEN 1 ELSE 0 END), 0) AS suspicious, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed",
			models.StatusFailed,
		).
		Scan(&totals).Error
	return totals, persistenceError("totals", err)
}

func (r *auditAnalyticsRepository) RoleActivity(ctx context.Context, since, until time.Time) ([]RoleActivityRow, error) {
	var rows []RoleActivityRow
	err := r.window(ctx, since, until).
		Select("actor_role AS role, COUNT(*) AS events, COUNT(DISTINCT actor_id) AS actors").
		Group("actor_role").
		Order("events DESC, role ASC").
		Scan(&rows).Error
	return rows, persistenceError("role_activity", err)
}

func (r *auditAnalyticsRepository) ActionCounts(ctx context.Context, since, until time.Time) ([]ActionCountRow, error) {
	var rows []ActionCountRow
	err := r.window(ctx, since, until).
		Select("action, COUNT(*) AS events, COUNT(DISTINCT actor_id) AS actors").
		Group("action").
		Order("events DESC, action ASC").
		Scan(&rows).Error
	return rows, persistenceError("action_counts", err)
}

func (r *auditAnalyticsRepository) RiskCounts(ctx context.Context, since, until time.Time) ([]RiskCountRow, error) {
	var rows []RiskCountRow
	err := r.window(ctx, since, until).
		Select("risk_level, COUNT(*) AS events").
		Group("risk_level").
		Order("risk_level ASC").
		Scan(&rows).Error
	return rows, persistenceError("risk_counts", err)
}

func (r *auditAnalyticsRepository) ActionDailyCounts(ctx context.Context, since, until time.Time) ([]ActionDayRow, error) {
	var rows []ActionDayRow
	err := r.window(ctx, since, until).
		Select("action, " + r.dayExpression() + " AS event_day, COUNT(*) AS events").
		Group("action, event_day").
		Order("action ASC, event_day ASC").
		Scan(&rows).Error
	return rows, persistenceError("action_daily_counts", err)
}

func (r *auditAnalyticsRepository) dayExpression() string {
	if r.db.Dialector.Name() == "postgres" {
		return "TO_CHAR(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "strftime('%Y-%m-%d', occurred_at)"
}

func (r *auditAnalyticsRepository) failedLogins(ctx context.Context, since, until time.Time) *gorm.DB {
	return r.window(ctx, since, until).
		Where("(action = ? OR (action = ? AND status = ?))", models.ActionLoginFailed, models.ActionLogin, models.StatusFailed)
}

func (r *auditAnalyticsRepository) FailedLoginsByIP(ctx context.Context, since, until time.Time, threshold int) ([]IPAttemptRow, error) {
	var rows []IPAttemptRow
	err := r.failedLogins(ctx, since, until).
		Select("ip_address, COUNT(*) AS attempts").
		Group("ip_address").
		Having("COUNT(*) >= ?", threshold).
		Order("attempts DESC, ip_address ASC").
		Scan(&rows).Error
	return rows, persistenceError("failed_logins_by_ip", err)
}

func (r *auditAnalyticsRepository) FailedLogins(ctx context.Context, since, until time.Time, ips []string) ([]FailedLoginRow, error) {
	if len(ips) == 0 {
		return nil, nil
	}
	var rows []FailedLoginRow
	err := r.failedLogins(ctx, since, until).
		Select("ip_address, actor_id, actor_email, metadata").
		Where("ip_address IN ?", ips).
		Scan(&rows).Error
	return rows, persistenceError("failed_logins", err)
}

func (r *auditAnalyticsRepository) ReadAccessByActor(ctx context.Context, since, until time.Time, actions []models.Action, threshold int) ([]ActorAccessRow, error) {
	var rows []ActorAccessRow
	err := r.window(ctx, since, until).
		Select("actor_id, MAX(actor_role) AS actor_role, MAX(actor_name) AS actor_name, COUNT(*) AS events").
		Where("action IN ?", actions).
		Group("actor_id").
		Having("COUNT(*) >= ?", threshold).
		Order("events DESC, actor_id ASC").
		Scan(&rows).Error
	return rows, persistenceError("read_access_by_actor", err)
}

func (r *auditAnalyticsRepository) ReadAccessResources(ctx context.Context, since, until time.Time, actions []models.Action, actorIDs []string) ([]ActorResourceRow, error) {
	if len(actorIDs) == 0 {
		return nil, nil
	}
	var rows []ActorResourceRow
	err := r.window(ctx, since, until).
		Distinct("actor_id", "resource_type", "resource_id").
		Where("action IN ?", actions).
		Where("actor_id IN ?", actorIDs).
		Where("resource_id <> ''").
		Order("actor_id ASC, resource_id ASC").
		Scan(&rows).Error
	return rows, persistenceError("read_access_resources", err)
}
