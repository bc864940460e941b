package models

import (
	"sort"
	"strings"
)

// Role identifies the kind of actor that performed an audited action.
type Role string

// Roles recognised by the audit trail.
const (
	RoleAdmin     Role = "admin"
	RolePrincipal Role = "principal"
	RoleCounselor Role = "counselor"
	RoleTeacher   Role = "teacher"
	RoleParent    Role = "parent"
	RoleStudent   Role = "student"
	RoleSystem    Role = "system"
	RoleAnonymous Role = "anonymous"
)

var validRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RolePrincipal: {},
	RoleCounselor: {},
	RoleTeacher:   {},
	RoleParent:    {},
	RoleStudent:   {},
	RoleSystem:    {},
	RoleAnonymous: {},
}

// IsValid reports whether the role belongs to the closed role set.
func (r Role) IsValid() bool {
	_, ok := validRoles[r]
	return ok
}

// ParseRole normalises and validates a role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", &ValidationError{Field: "actor.role", Reason: "unknown role " + quote(value)}
	}
	return role, nil
}

// Domain groups actions by the area of the system they belong to.
type Domain string

const (
	DomainAuth         Domain = "auth"
	DomainStudent      Domain = "student"
	DomainAttendance   Domain = "attendance"
	DomainGrade        Domain = "grade"
	DomainIntervention Domain = "intervention"
	DomainSession      Domain = "session"
	DomainRisk         Domain = "risk"
	DomainReport       Domain = "report"
	DomainNotification Domain = "notification"
	DomainDocument     Domain = "document"
	DomainUser         Domain = "user"
	DomainSystem       Domain = "system"
	DomainData         Domain = "data"
	DomainOther        Domain = "other"
)

// Action is the closed enumeration of audited action codes.
type Action string

const (
	// Authentication
	ActionLogin                  Action = "LOGIN"
	ActionLoginFailed            Action = "LOGIN_FAILED"
	ActionLogout                 Action = "LOGOUT"
	ActionPasswordChanged        Action = "PASSWORD_CHANGED"
	ActionPasswordResetRequested Action = "PASSWORD_RESET_REQUESTED"
	ActionPasswordReset          Action = "PASSWORD_RESET"
	ActionTokenRefreshed         Action = "TOKEN_REFRESHED"
	ActionAccountLocked          Action = "ACCOUNT_LOCKED"

	// Student lifecycle
	ActionStudentCreated     Action = "STUDENT_CREATED"
	ActionStudentViewed      Action = "STUDENT_VIEWED"
	ActionStudentUpdated     Action = "STUDENT_UPDATED"
	ActionStudentDeleted     Action = "STUDENT_DELETED"
	ActionStudentArchived    Action = "STUDENT_ARCHIVED"
	ActionStudentTransferred Action = "STUDENT_TRANSFERRED"

	// Attendance
	ActionAttendanceRecorded Action = "ATTENDANCE_RECORDED"
	ActionAttendanceUpdated  Action = "ATTENDANCE_UPDATED"
	ActionAttendanceImported Action = "ATTENDANCE_BULK_IMPORTED"

	// Grades
	ActionGradeCreated Action = "GRADE_CREATED"
	ActionGradeUpdated Action = "GRADE_UPDATED"
	ActionGradeDeleted Action = "GRADE_DELETED"
	ActionGradeViewed  Action = "GRADE_VIEWED"

	// Interventions
	ActionInterventionCreated   Action = "INTERVENTION_CREATED"
	ActionInterventionUpdated   Action = "INTERVENTION_UPDATED"
	ActionInterventionCompleted Action = "INTERVENTION_COMPLETED"
	ActionInterventionCancelled Action = "INTERVENTION_CANCELLED"
	ActionInterventionViewed    Action = "INTERVENTION_VIEWED"

	// Counseling sessions
	ActionSessionScheduled   Action = "SESSION_SCHEDULED"
	ActionSessionUpdated     Action = "SESSION_UPDATED"
	ActionSessionCompleted   Action = "SESSION_COMPLETED"
	ActionSessionCancelled   Action = "SESSION_CANCELLED"
	ActionSessionNotesViewed Action = "SESSION_NOTES_VIEWED"

	// Risk
	ActionRiskAssessed       Action = "RISK_ASSESSED"
	ActionRiskLevelChanged   Action = "RISK_LEVEL_CHANGED"
	ActionRiskAlertTriggered Action = "RISK_ALERT_TRIGGERED"

	// Reports
	ActionReportGenerated Action = "REPORT_GENERATED"
	ActionReportViewed    Action = "REPORT_VIEWED"
	ActionReportExported  Action = "REPORT_EXPORTED"

	// Notifications
	ActionNotificationSent Action = "NOTIFICATION_SENT"
	ActionNotificationRead Action = "NOTIFICATION_READ"

	// Documents
	ActionDocumentUploaded   Action = "DOCUMENT_UPLOADED"
	ActionDocumentViewed     Action = "DOCUMENT_VIEWED"
	ActionDocumentDownloaded Action = "DOCUMENT_DOWNLOADED"
	ActionDocumentDeleted    Action = "DOCUMENT_DELETED"

	// User management
	ActionUserCreated     Action = "USER_CREATED"
	ActionUserUpdated     Action = "USER_UPDATED"
	ActionUserDeleted     Action = "USER_DELETED"
	ActionUserRoleChanged Action = "USER_ROLE_CHANGED"
	ActionUserActivated   Action = "USER_ACTIVATED"
	ActionUserDeactivated Action = "USER_DEACTIVATED"

	// System
	ActionSystemConfigChanged Action = "SYSTEM_CONFIG_CHANGED"
	ActionSystemBackup        Action = "SYSTEM_BACKUP"
	ActionSystemMaintenance   Action = "SYSTEM_MAINTENANCE"

	// Data import/export
	ActionDataImported Action = "DATA_IMPORTED"
	ActionDataExported Action = "DATA_EXPORTED"

	// Other
	ActionResourceViewed Action = "RESOURCE_VIEWED"
	ActionOther          Action = "OTHER"
)

var actionDomains = map[Action]Domain{
	ActionLogin:                  DomainAuth,
	ActionLoginFailed:            DomainAuth,
	ActionLogout:                 DomainAuth,
	ActionPasswordChanged:        DomainAuth,
	ActionPasswordResetRequested: DomainAuth,
	ActionPasswordReset:          DomainAuth,
	ActionTokenRefreshed:         DomainAuth,
	ActionAccountLocked:          DomainAuth,

	ActionStudentCreated:     DomainStudent,
	ActionStudentViewed:      DomainStudent,
	ActionStudentUpdated:     DomainStudent,
	ActionStudentDeleted:     DomainStudent,
	ActionStudentArchived:    DomainStudent,
	ActionStudentTransferred: DomainStudent,

	ActionAttendanceRecorded: DomainAttendance,
	ActionAttendanceUpdated:  DomainAttendance,
	ActionAttendanceImported: DomainAttendance,

	ActionGradeCreated: DomainGrade,
	ActionGradeUpdated: DomainGrade,
	ActionGradeDeleted: DomainGrade,
	ActionGradeViewed:  DomainGrade,

	ActionInterventionCreated:   DomainIntervention,
	ActionInterventionUpdated:   DomainIntervention,
	ActionInterventionCompleted: DomainIntervention,
	ActionInterventionCancelled: DomainIntervention,
	ActionInterventionViewed:    DomainIntervention,

	ActionSessionScheduled:   DomainSession,
	ActionSessionUpdated:     DomainSession,
	ActionSessionCompleted:   DomainSession,
	ActionSessionCancelled:   DomainSession,
	ActionSessionNotesViewed: DomainSession,

	ActionRiskAssessed:       DomainRisk,
	ActionRiskLevelChanged:   DomainRisk,
	ActionRiskAlertTriggered: DomainRisk,

	ActionReportGenerated: DomainReport,
	ActionReportViewed:    DomainReport,
	ActionReportExported:  DomainReport,

	ActionNotificationSent: DomainNotification,
	ActionNotificationRead: DomainNotification,

	ActionDocumentUploaded:   DomainDocument,
	ActionDocumentViewed:     DomainDocument,
	ActionDocumentDownloaded: DomainDocument,
	ActionDocumentDeleted:    DomainDocument,

	ActionUserCreated:     DomainUser,
	ActionUserUpdated:     DomainUser,
	ActionUserDeleted:     DomainUser,
	ActionUserRoleChanged: DomainUser,
	ActionUserActivated:   DomainUser,
	ActionUserDeactivated: DomainUser,

	ActionSystemConfigChanged: DomainSystem,
	ActionSystemBackup:        DomainSystem,
	ActionSystemMaintenance:   DomainSystem,

	ActionDataImported: DomainData,
	ActionDataExported: DomainData,

	ActionResourceViewed: DomainOther,
	ActionOther:          DomainOther,
}

// readActions are the read/download class actions watched by the bulk-access heuristic.
var readActions = map[Action]struct{}{
	ActionStudentViewed:      {},
	ActionGradeViewed:        {},
	ActionInterventionViewed: {},
	ActionSessionNotesViewed: {},
	ActionReportViewed:       {},
	ActionReportExported:     {},
	ActionDocumentViewed:     {},
	ActionDocumentDownloaded: {},
	ActionDataExported:       {},
	ActionResourceViewed:     {},
}

// IsValid reports whether the action code is part of the closed action set.
func (a Action) IsValid() bool {
	_, ok := actionDomains[a]
	return ok
}

// Domain returns the functional domain of the action. Unknown actions map to DomainOther.
func (a Action) Domain() Domain {
	if domain, ok := actionDomains[a]; ok {
		return domain
	}
	return DomainOther
}

// IsReadAccess reports whether the action reads or downloads data.
func (a Action) IsReadAccess() bool {
	_, ok := readActions[a]
	return ok
}

// ParseAction normalises and validates an action code.
func ParseAction(value string) (Action, error) {
	action := Action(strings.ToUpper(strings.TrimSpace(value)))
	if !action.IsValid() {
		return "", &ValidationError{Field: "action", Reason: "unknown action " + quote(value)}
	}
	return action, nil
}

// ReadAccessActions lists the read/download class actions in lexical order.
func ReadAccessActions() []Action {
	actions := make([]Action, 0, len(readActions))
	for action := range readActions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// ResourceType is the closed set of audited object kinds.
type ResourceType string

const (
	ResourceUser           ResourceType = "User"
	ResourceStudent        ResourceType = "Student"
	ResourceClass          ResourceType = "Class"
	ResourceGrade          ResourceType = "Grade"
	ResourceAttendance     ResourceType = "Attendance"
	ResourceIntervention   ResourceType = "Intervention"
	ResourceSession        ResourceType = "Session"
	ResourceRiskAssessment ResourceType = "RiskAssessment"
	ResourceReport         ResourceType = "Report"
	ResourceNotification   ResourceType = "Notification"
	ResourceDocument       ResourceType = "Document"
	ResourceSystem         ResourceType = "System"
	ResourceOther          ResourceType = "Other"
)

var validResourceTypes = map[string]ResourceType{}

func init() {
	for _, t := range []ResourceType{
		ResourceUser, ResourceStudent, ResourceClass, ResourceGrade, ResourceAttendance,
		ResourceIntervention, ResourceSession, ResourceRiskAssessment, ResourceReport,
		ResourceNotification, ResourceDocument, ResourceSystem, ResourceOther,
	} {
		validResourceTypes[strings.ToLower(string(t))] = t
	}
}

// IsValid reports whether the resource type belongs to the closed set.
func (t ResourceType) IsValid() bool {
	canonical, ok := validResourceTypes[strings.ToLower(string(t))]
	return ok && canonical == t
}

// ParseResourceType resolves a resource type case-insensitively.
func ParseResourceType(value string) (ResourceType, error) {
	if t, ok := validResourceTypes[strings.ToLower(strings.TrimSpace(value))]; ok {
		return t, nil
	}
	return "", &ValidationError{Field: "resource.type", Reason: "unknown resource type " + quote(value)}
}

// RiskLevel classifies how sensitive an event is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

var riskLevels = map[string]RiskLevel{
	"low":      RiskLow,
	"medium":   RiskMedium,
	"high":     RiskHigh,
	"critical": RiskCritical,
}

// IsValid reports whether the risk level belongs to the closed set.
func (r RiskLevel) IsValid() bool {
	canonical, ok := riskLevels[strings.ToLower(string(r))]
	return ok && canonical == r
}

// ParseRiskLevel resolves a risk level case-insensitively.
func ParseRiskLevel(value string) (RiskLevel, error) {
	if r, ok := riskLevels[strings.ToLower(strings.TrimSpace(value))]; ok {
		return r, nil
	}
	return "", &ValidationError{Field: "riskLevel", Reason: "unknown risk level " + quote(value)}
}

// Status is the outcome of an audited action.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusPartial Status = "Partial"
	StatusWarning Status = "Warning"
)

var statuses = map[string]Status{
	"success": StatusSuccess,
	"failed":  StatusFailed,
	"partial": StatusPartial,
	"warning": StatusWarning,
}

// IsValid reports whether the status belongs to the closed set.
func (s Status) IsValid() bool {
	canonical, ok := statuses[strings.ToLower(string(s))]
	return ok && canonical == s
}

// ParseStatus resolves a status case-insensitively.
func ParseStatus(value string) (Status, error) {
	if s, ok := statuses[strings.ToLower(strings.TrimSpace(value))]; ok {
		return s, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + quote(value)}
}

// ComplianceType names the regulation a compliance-relevant record falls under.
type ComplianceType string

const (
	ComplianceGDPR           ComplianceType = "GDPR"
	ComplianceFERPA          ComplianceType = "FERPA"
	ComplianceDataProtection ComplianceType = "DataProtection"
	CompliancePrivacy        ComplianceType = "Privacy"
	ComplianceOther          ComplianceType = "Other"
)

var complianceTypes = map[string]ComplianceType{
	"gdpr":           ComplianceGDPR,
	"ferpa":          ComplianceFERPA,
	"dataprotection": ComplianceDataProtection,
	"privacy":        CompliancePrivacy,
	"other":          ComplianceOther,
}

// IsValid reports whether the compliance type belongs to the closed set.
func (c ComplianceType) IsValid() bool {
	canonical, ok := complianceTypes[strings.ToLower(string(c))]
	return ok && canonical == c
}

// ParseComplianceType resolves a compliance type case-insensitively.
func ParseComplianceType(value string) (ComplianceType, error) {
	if c, ok := complianceTypes[strings.ToLower(strings.TrimSpace(value))]; ok {
		return c, nil
	}
	return "", &ValidationError{Field: "complianceType", Reason: "unknown compliance type " + quote(value)}
}

func quote(value string) string {
	return "\"" + value + "\""
}
