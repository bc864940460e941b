package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// The helpers in this file map domain events onto record parameters. They perform no I/O; pass
// the result to AuditRecorder.Record or RecordAsync.

// AuditContext is the part every domain event shares.
type AuditContext struct {
	Actor  models.ActorSnapshot
	Action models.Action
	Source RequestSource
}

// StudentRef identifies the student an event touches.
type StudentRef struct {
	ID      string
	Name    string
	ClassID string
}

// AuthEvent describes sign-in and credential activity.
type AuthEvent struct {
	AuditContext
	AttemptedIdentifier string
	Reason              string
}

// StudentEvent describes student lifecycle activity.
type StudentEvent struct {
	AuditContext
	Student StudentRef
	Changes *models.ChangeSet
}

// AttendanceEvent describes attendance bookkeeping.
type AttendanceEvent struct {
	AuditContext
	Student     StudentRef
	RecordID    string
	Date        string
	State       string
	RecordCount int
}

// GradeEvent describes grade changes and lookups.
type GradeEvent struct {
	AuditContext
	Student StudentRef
	GradeID string
	Subject string
	Changes *models.ChangeSet
}

// InterventionEvent describes support interventions for a student.
type InterventionEvent struct {
	AuditContext
	Student        StudentRef
	InterventionID string
	Title          string
	Kind           string
}

// SessionEvent describes counseling sessions.
type SessionEvent struct {
	AuditContext
	Student   StudentRef
	SessionID string
	Topic     string
}

// RiskEvent describes dropout-risk assessments.
type RiskEvent struct {
	AuditContext
	Student       StudentRef
	AssessmentID  string
	PreviousLevel string
	NewLevel      string
	Score         float64
}

// DocumentEvent describes stored documents.
type DocumentEvent struct {
	AuditContext
	Student    StudentRef
	DocumentID string
	FileName   string
}

// NotificationEvent describes notification delivery.
type NotificationEvent struct {
	AuditContext
	NotificationID string
	RecipientID    string
	Channel        string
}

// ReportEvent describes generated and exported reports.
type ReportEvent struct {
	AuditContext
	ReportID   string
	ReportName string
	Format     string
}

// UserEvent describes account administration.
type UserEvent struct {
	AuditContext
	UserID     string
	UserName   string
	TargetRole models.Role
	Changes    *models.ChangeSet
}

// SystemEvent describes configuration, maintenance and data import/export jobs.
type SystemEvent struct {
	AuditContext
	Component   string
	Detail      string
	RecordCount int
	Err         error
}

type actionProfile struct {
	verb       string
	risk       models.RiskLevel
	compliance models.ComplianceType
}

var authProfiles = map[models.Action]actionProfile{
	models.ActionLogin:                  {verb: "signed in", risk: models.RiskLow},
	models.ActionLoginFailed:            {verb: "failed to sign in", risk: models.RiskMedium},
	models.ActionLogout:                 {verb: "signed out", risk: models.RiskLow},
	models.ActionPasswordChanged:        {verb: "changed their password", risk: models.RiskMedium, compliance: models.ComplianceDataProtection},
	models.ActionPasswordResetRequested: {verb: "requested a password reset", risk: models.RiskLow},
	models.ActionPasswordReset:          {verb: "reset their password", risk: models.RiskMedium, compliance: models.ComplianceDataProtection},
	models.ActionTokenRefreshed:         {verb: "refreshed their session token", risk: models.RiskLow},
	models.ActionAccountLocked:          {verb: "was locked out", risk: models.RiskHigh, compliance: models.ComplianceDataProtection},
}

var studentProfiles = map[models.Action]actionProfile{
	models.ActionStudentCreated:     {verb: "created student", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionStudentViewed:      {verb: "viewed student", risk: models.RiskLow, compliance: models.ComplianceFERPA},
	models.ActionStudentUpdated:     {verb: "updated student", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionStudentDeleted:     {verb: "deleted student", risk: models.RiskHigh, compliance: models.ComplianceFERPA},
	models.ActionStudentArchived:    {verb: "archived student", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionStudentTransferred: {verb: "transferred student", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
}

var gradeProfiles = map[models.Action]actionProfile{
	models.ActionGradeCreated: {verb: "recorded a grade for", risk: models.RiskLow, compliance: models.ComplianceFERPA},
	models.ActionGradeUpdated: {verb: "changed a grade for", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionGradeDeleted: {verb: "deleted a grade for", risk: models.RiskHigh, compliance: models.ComplianceFERPA},
	models.ActionGradeViewed:  {verb: "viewed grades of", risk: models.RiskLow, compliance: models.ComplianceFERPA},
}

var interventionProfiles = map[models.Action]actionProfile{
	models.ActionInterventionCreated:   {verb: "opened intervention", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionInterventionUpdated:   {verb: "updated intervention", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionInterventionCompleted: {verb: "completed intervention", risk: models.RiskLow, compliance: models.ComplianceFERPA},
	models.ActionInterventionCancelled: {verb: "cancelled intervention", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionInterventionViewed:    {verb: "viewed intervention", risk: models.RiskLow, compliance: models.ComplianceFERPA},
}

var sessionProfiles = map[models.Action]actionProfile{
	models.ActionSessionScheduled:   {verb: "scheduled counseling session", risk: models.RiskLow, compliance: models.CompliancePrivacy},
	models.ActionSessionUpdated:     {verb: "updated counseling session", risk: models.RiskLow, compliance: models.CompliancePrivacy},
	models.ActionSessionCompleted:   {verb: "completed counseling session", risk: models.RiskLow, compliance: models.CompliancePrivacy},
	models.ActionSessionCancelled:   {verb: "cancelled counseling session", risk: models.RiskLow, compliance: models.CompliancePrivacy},
	models.ActionSessionNotesViewed: {verb: "read the notes of counseling session", risk: models.RiskMedium, compliance: models.CompliancePrivacy},
}

var riskProfiles = map[models.Action]actionProfile{
	models.ActionRiskAssessed:       {verb: "assessed dropout risk of", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionRiskLevelChanged:   {verb: "changed the risk level of", risk: models.RiskMedium, compliance: models.ComplianceFERPA},
	models.ActionRiskAlertTriggered: {verb: "raised a risk alert for", risk: models.RiskHigh, compliance: models.ComplianceFERPA},
}

var documentProfiles = map[models.Action]actionProfile{
	models.ActionDocumentUploaded:   {verb: "uploaded document", risk: models.RiskLow, compliance: models.ComplianceDataProtection},
	models.ActionDocumentViewed:     {verb: "viewed document", risk: models.RiskLow, compliance: models.ComplianceDataProtection},
	models.ActionDocumentDownloaded: {verb: "downloaded document", risk: models.RiskMedium, compliance: models.ComplianceDataProtection},
	models.ActionDocumentDeleted:    {verb: "deleted document", risk: models.RiskHigh, compliance: models.ComplianceDataProtection},
}

var notificationProfiles = map[models.Action]actionProfile{
	models.ActionNotificationSent: {verb: "sent notification", risk: models.RiskLow},
	models.ActionNotificationRead: {verb: "read notification", risk: models.RiskLow},
}

var reportProfiles = map[models.Action]actionProfile{
	models.ActionReportGenerated: {verb: "generated report", risk: models.RiskLow},
	models.ActionReportViewed:    {verb: "viewed report", risk: models.RiskLow, compliance: models.ComplianceFERPA},
	models.ActionReportExported:  {verb: "exported report", risk: models.RiskMedium, compliance: models.ComplianceDataProtection},
}

var userProfiles = map[models.Action]actionProfile{
	models.ActionUserCreated:     {verb: "created user", risk: models.RiskMedium, compliance: models.ComplianceGDPR},
	models.ActionUserUpdated:     {verb: "updated user", risk: models.RiskMedium, compliance: models.ComplianceGDPR},
	models.ActionUserDeleted:     {verb: "deleted user", risk: models.RiskHigh, compliance: models.ComplianceGDPR},
	models.ActionUserRoleChanged: {verb: "changed the role of user", risk: models.RiskHigh, compliance: models.ComplianceGDPR},
	models.ActionUserActivated:   {verb: "activated user", risk: models.RiskMedium, compliance: models.ComplianceGDPR},
	models.ActionUserDeactivated: {verb: "deactivated user", risk: models.RiskMedium, compliance: models.ComplianceGDPR},
}

var systemProfiles = map[models.Action]actionProfile{
	models.ActionSystemConfigChanged: {verb: "changed system configuration", risk: models.RiskHigh, compliance: models.ComplianceOther},
	models.ActionSystemBackup:        {verb: "ran a system backup", risk: models.RiskLow},
	models.ActionSystemMaintenance:   {verb: "ran system maintenance", risk: models.RiskMedium},
	models.ActionDataImported:        {verb: "imported data", risk: models.RiskMedium, compliance: models.ComplianceGDPR},
	models.ActionDataExported:        {verb: "exported data", risk: models.RiskHigh, compliance: models.ComplianceGDPR},
}

// profileFor falls back to a neutral profile so a mismatched action still yields a readable record.
func profileFor(profiles map[models.Action]actionProfile, action models.Action) actionProfile {
	if profile, ok := profiles[action]; ok {
		return profile
	}
	return actionProfile{verb: "performed " + strings.ToLower(string(action)) + " on", risk: models.RiskLow}
}

func baseEntry(audit AuditContext, profile actionProfile, description string) AuditEntry {
	return AuditEntry{
		Source: audit.Source,
		Params: models.AuditLogParams{
			Actor:                audit.Actor,
			Action:               audit.Action,
			Description:          description,
			RiskLevel:            profile.risk,
			Status:               models.StatusSuccess,
			IsComplianceRelevant: profile.compliance != "",
			ComplianceType:       profile.compliance,
			Tags:                 []string{string(audit.Action.Domain())},
		},
	}
}

func actorLabel(actor models.ActorSnapshot) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	if actor.ID != "" {
		return actor.ID
	}
	return "unknown actor"
}

func studentLabel(student StudentRef) string {
	if student.Name != "" {
		return student.Name
	}
	return student.ID
}

func withStudent(entry AuditEntry, student StudentRef) AuditEntry {
	entry.Params.RelatedStudentID = student.ID
	entry.Params.RelatedClassID = student.ClassID
	return entry
}

// AuthEntry maps authentication activity. Failed sign-ins carry the attempted identifier in metadata
// so the credential-stuffing scan can report it.
func AuthEntry(event AuthEvent) AuditEntry {
	profile := profileFor(authProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s", actorLabel(event.Actor), profile.verb))
	entry.Params.Metadata = map[string]interface{}{}

	if event.AttemptedIdentifier != "" {
		entry.Params.Metadata["attemptedIdentifier"] = event.AttemptedIdentifier
	}
	if event.Reason != "" {
		entry.Params.Metadata["reason"] = event.Reason
	}

	switch event.Action {
	case models.ActionLoginFailed:
		entry.Params.Status = models.StatusFailed
		entry.Params.ErrorMessage = event.Reason
		if event.AttemptedIdentifier != "" {
			entry.Params.Description = fmt.Sprintf("Failed sign-in for %s", event.AttemptedIdentifier)
		}
	case models.ActionAccountLocked:
		entry.Params.IsSuspicious = true
		entry.Params.SuspiciousReason = event.Reason
		if entry.Params.SuspiciousReason == "" {
			entry.Params.SuspiciousReason = "account locked"
		}
	}

	if event.Action != models.ActionLoginFailed && event.Actor.ID != "" {
		entry.Params.Resource = &models.ResourceRef{Type: models.ResourceUser, ID: event.Actor.ID, Name: event.Actor.Name}
	}
	return entry
}

// StudentEntry maps student lifecycle activity.
func StudentEntry(event StudentEvent) AuditEntry {
	profile := profileFor(studentProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, studentLabel(event.Student)))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceStudent, ID: event.Student.ID, Name: event.Student.Name}
	entry.Params.Changes = event.Changes
	return withStudent(entry, event.Student)
}

// AttendanceEntry maps attendance bookkeeping. Bulk imports report the record count.
func AttendanceEntry(event AttendanceEvent) AuditEntry {
	var description string
	switch event.Action {
	case models.ActionAttendanceImported:
		description = fmt.Sprintf("%s imported %d attendance records", actorLabel(event.Actor), event.RecordCount)
	case models.ActionAttendanceUpdated:
		description = fmt.Sprintf("%s corrected attendance of %s on %s", actorLabel(event.Actor), studentLabel(event.Student), event.Date)
	default:
		description = fmt.Sprintf("%s marked %s %s on %s", actorLabel(event.Actor), studentLabel(event.Student), strings.ToLower(event.State), event.Date)
	}

	risk := models.RiskLow
	if event.Action != models.ActionAttendanceRecorded {
		risk = models.RiskMedium
	}
	entry := baseEntry(event.AuditContext, actionProfile{risk: risk, compliance: models.ComplianceFERPA}, description)
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceAttendance, ID: event.RecordID, Name: event.Date}
	entry.Params.Metadata = map[string]interface{}{"date": event.Date}
	if event.State != "" {
		entry.Params.Metadata["state"] = event.State
	}
	if event.RecordCount > 0 {
		entry.Params.Metadata["recordCount"] = event.RecordCount
	}
	return withStudent(entry, event.Student)
}

// GradeEntry maps grade activity.
func GradeEntry(event GradeEvent) AuditEntry {
	profile := profileFor(gradeProfiles, event.Action)
	description := fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, studentLabel(event.Student))
	if event.Subject != "" {
		description += " in " + event.Subject
	}
	entry := baseEntry(event.AuditContext, profile, description)
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceGrade, ID: event.GradeID, Name: event.Subject}
	entry.Params.Changes = event.Changes
	return withStudent(entry, event.Student)
}

// InterventionEntry maps intervention activity.
func InterventionEntry(event InterventionEvent) AuditEntry {
	profile := profileFor(interventionProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s %q for %s", actorLabel(event.Actor), profile.verb, event.Title, studentLabel(event.Student)))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceIntervention, ID: event.InterventionID, Name: event.Title}
	if event.Kind != "" {
		entry.Params.Metadata = map[string]interface{}{"kind": event.Kind}
	}
	return withStudent(entry, event.Student)
}

// SessionEntry maps counseling session activity.
func SessionEntry(event SessionEvent) AuditEntry {
	profile := profileFor(sessionProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s with %s", actorLabel(event.Actor), profile.verb, studentLabel(event.Student)))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceSession, ID: event.SessionID, Name: event.Topic}
	return withStudent(entry, event.Student)
}

// RiskEntry maps risk assessments. Escalations to high or critical raise the record's own risk level.
func RiskEntry(event RiskEvent) AuditEntry {
	profile := profileFor(riskProfiles, event.Action)
	description := fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, studentLabel(event.Student))
	if event.NewLevel != "" {
		description += " to " + event.NewLevel
	}

	if level, err := models.ParseRiskLevel(event.NewLevel); err == nil && (level == models.RiskHigh || level == models.RiskCritical) {
		profile.risk = models.RiskHigh
	}

	entry := baseEntry(event.AuditContext, profile, description)
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceRiskAssessment, ID: event.AssessmentID, Name: studentLabel(event.Student)}
	entry.Params.Metadata = map[string]interface{}{"score": event.Score}
	if event.PreviousLevel != "" || event.NewLevel != "" {
		entry.Params.Changes = &models.ChangeSet{
			Before: map[string]interface{}{"riskLevel": event.PreviousLevel},
			After:  map[string]interface{}{"riskLevel": event.NewLevel},
		}
	}
	return withStudent(entry, event.Student)
}

// DocumentEntry maps document handling.
func DocumentEntry(event DocumentEvent) AuditEntry {
	profile := profileFor(documentProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, event.FileName))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceDocument, ID: event.DocumentID, Name: event.FileName}
	return withStudent(entry, event.Student)
}

// NotificationEntry maps notification delivery.
func NotificationEntry(event NotificationEvent) AuditEntry {
	profile := profileFor(notificationProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, event.NotificationID))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceNotification, ID: event.NotificationID}
	entry.Params.Metadata = map[string]interface{}{}
	if event.RecipientID != "" {
		entry.Params.Metadata["recipientId"] = event.RecipientID
	}
	if event.Channel != "" {
		entry.Params.Metadata["channel"] = event.Channel
	}
	return entry
}

// ReportEntry maps report activity.
func ReportEntry(event ReportEvent) AuditEntry {
	profile := profileFor(reportProfiles, event.Action)
	entry := baseEntry(event.AuditContext, profile, fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, event.ReportName))
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceReport, ID: event.ReportID, Name: event.ReportName}
	if event.Format != "" {
		entry.Params.Metadata = map[string]interface{}{"format": event.Format}
	}
	return entry
}

// UserEntry maps account administration.
func UserEntry(event UserEvent) AuditEntry {
	profile := profileFor(userProfiles, event.Action)
	label := event.UserName
	if label == "" {
		label = event.UserID
	}
	description := fmt.Sprintf("%s %s %s", actorLabel(event.Actor), profile.verb, label)
	if event.Action == models.ActionUserRoleChanged && event.TargetRole != "" {
		description += " to " + string(event.TargetRole)
	}
	entry := baseEntry(event.AuditContext, profile, description)
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceUser, ID: event.UserID, Name: event.UserName}
	entry.Params.Changes = event.Changes
	return entry
}

// SystemEntry maps system operations and data import/export jobs. A non-nil Err marks the record failed.
func SystemEntry(event SystemEvent) AuditEntry {
	profile := profileFor(systemProfiles, event.Action)
	description := fmt.Sprintf("%s %s", actorLabel(event.Actor), profile.verb)
	if event.Component != "" {
		description += " (" + event.Component + ")"
	}
	entry := baseEntry(event.AuditContext, profile, description)
	entry.Params.Resource = &models.ResourceRef{Type: models.ResourceSystem, ID: event.Component, Name: event.Component}
	entry.Params.Metadata = map[string]interface{}{}
	if event.Detail != "" {
		entry.Params.Metadata["detail"] = event.Detail
	}
	if event.RecordCount > 0 {
		entry.Params.Metadata["recordCount"] = event.RecordCount
	}
	if event.Err != nil {
		entry.Params.Status = models.StatusFailed
		entry.Params.ErrorMessage = event.Err.Error()
	}
	return entry
}
