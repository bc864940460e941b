package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-audit-api/internal/dto"
	"github.com/noah-isme/gema-audit-api/internal/middleware"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/service"
	"github.com/noah-isme/gema-audit-api/internal/utils"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	recorder   service.AuditRecorder
	query      service.AuditQueryService
	statistics service.AuditStatisticsService
	anomalies  service.AuditAnomalyService
	retention  service.AuditRetentionService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// AuditHandlerDeps groups the services behind the audit endpoints.
type AuditHandlerDeps struct {
	Recorder   service.AuditRecorder
	Query      service.AuditQueryService
	Statistics service.AuditStatisticsService
	Anomalies  service.AuditAnomalyService
	Retention  service.AuditRetentionService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(deps AuditHandlerDeps, validate *validator.Validate, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		recorder:   deps.Recorder,
		query:      deps.Query,
		statistics: deps.Statistics,
		anomalies:  deps.Anomalies,
		retention:  deps.Retention,
		validator:  validate,
		logger:     logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register attaches audit routes to the router group. writeGuard, when set, wraps the mutating routes.
func (h *AuditHandler) Register(router fiber.Router, writeGuard fiber.Handler) {
	if writeGuard == nil {
		writeGuard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.list)
	router.Post("", writeGuard, h.create)
	router.Get("/statistics", h.getStatistics)
	router.Get("/anomalies", h.detectAnomalies)
	router.Post("/retention/sweep", writeGuard, h.sweep)
	router.Get("/actors/:actorId", h.actorActivity)
	router.Get("/resources/:type/:id", h.resourceHistory)
	router.Get("/students/:studentId", h.studentHistory)
	router.Get("/:id", h.get)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	query, err := h.parseQuery(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.query.Query(c.UserContext(), query)
	if err != nil {
		return h.respondError(c, err, "failed to query audit logs")
	}

	return utils.OK(c, response.Items, "audit logs", fiber.Map{
		"pagination":  response.Pagination,
		"snapshot_at": response.SnapshotAt,
	})
}

func (h *AuditHandler) get(c *fiber.Ctx) error {
	includeSensitive, err := parseQueryBool(c, "include_sensitive")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid include_sensitive", nil)
	}

	response, err := h.query.GetByID(c.UserContext(), c.Params("id"), includeSensitive != nil && *includeSensitive)
	if err != nil {
		return h.respondError(c, err, "failed to load audit log")
	}
	return utils.SendSuccess(c, "audit log", response)
}

func (h *AuditHandler) actorActivity(c *fiber.Ctx) error {
	start, err := parseQueryTime(c, "start_date", false)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	end, err := parseQueryTime(c, "end_date", true)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid limit", nil)
	}

	items, err := h.query.ActivityForActor(c.UserContext(), c.Params("actorId"), start, end, limit)
	if err != nil {
		return h.respondError(c, err, "failed to load actor activity")
	}
	return utils.SendSuccess(c, "actor activity", items)
}

func (h *AuditHandler) resourceHistory(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid limit", nil)
	}

	items, err := h.query.HistoryForResource(c.UserContext(), c.Params("type"), c.Params("id"), limit)
	if err != nil {
		return h.respondError(c, err, "failed to load resource history")
	}
	return utils.SendSuccess(c, "resource history", items)
}

func (h *AuditHandler) studentHistory(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid limit", nil)
	}

	items, err := h.query.HistoryForStudent(c.UserContext(), c.Params("studentId"), limit)
	if err != nil {
		return h.respondError(c, err, "failed to load student history")
	}
	return utils.SendSuccess(c, "student history", items)
}

func (h *AuditHandler) getStatistics(c *fiber.Ctx) error {
	windowDays, err := parseQueryInt(c, "window_days")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid window_days", nil)
	}

	response, err := h.statistics.Statistics(c.UserContext(), windowDays)
	if err != nil {
		return h.respondError(c, err, "audit statistics unavailable")
	}
	return utils.SendSuccess(c, "audit statistics", response)
}

func (h *AuditHandler) detectAnomalies(c *fiber.Ctx) error {
	response, err := h.anomalies.DetectAnomalies(c.UserContext())
	if err != nil {
		return h.respondError(c, err, "anomaly scan unavailable")
	}
	return utils.SendSuccess(c, "anomaly report", response)
}

func (h *AuditHandler) sweep(c *fiber.Ctx) error {
	response, err := h.retention.Sweep(c.UserContext())
	if err != nil {
		return h.respondError(c, err, "retention sweep failed")
	}

	h.recorder.Record(c.UserContext(), service.SystemEntry(service.SystemEvent{
		AuditContext: service.AuditContext{
			Actor:  middleware.ActorFromContext(c),
			Action: models.ActionSystemMaintenance,
			Source: c,
		},
		Component:   "audit-retention",
		Detail:      "manual retention sweep",
		RecordCount: int(response.Deleted),
	}))

	return utils.SendSuccess(c, "retention sweep completed", response)
}

func (h *AuditHandler) create(c *fiber.Ctx) error {
	var payload dto.AuditLogCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}

	params, err := h.buildParams(c, payload)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	record := h.recorder.Record(c.UserContext(), service.AuditEntry{Params: params, Source: c})
	if record == nil {
		requestLogger(h.logger, c).Error().Str("action", string(params.Action)).Msg("manual audit record was not persisted")
		return utils.SendError(c, fiber.StatusInternalServerError, "audit record was not persisted")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "audit log recorded", dto.NewAuditLogResponse(*record))
}

func (h *AuditHandler) buildParams(c *fiber.Ctx, payload dto.AuditLogCreateRequest) (models.AuditLogParams, error) {
	action, err := models.ParseAction(payload.Action)
	if err != nil {
		return models.AuditLogParams{}, err
	}

	params := models.AuditLogParams{
		Actor:                middleware.ActorFromContext(c),
		Action:               action,
		Description:          payload.Description,
		RelatedStudentID:     payload.RelatedStudentID,
		RelatedClassID:       payload.RelatedClassID,
		Metadata:             payload.Metadata,
		Tags:                 payload.Tags,
		RiskLevel:            models.RiskLevel(payload.RiskLevel),
		IsSuspicious:         payload.IsSuspicious,
		SuspiciousReason:     payload.SuspiciousReason,
		Status:               models.Status(payload.Status),
		ErrorMessage:         payload.ErrorMessage,
		ErrorCode:            payload.ErrorCode,
		IsComplianceRelevant: payload.IsComplianceRelevant,
		ComplianceType:       models.ComplianceType(payload.ComplianceType),
		RetentionPeriodDays:  payload.RetentionPeriodDays,
	}

	if strings.TrimSpace(payload.ResourceType) != "" {
		resourceType, err := models.ParseResourceType(payload.ResourceType)
		if err != nil {
			return models.AuditLogParams{}, err
		}
		params.Resource = &models.ResourceRef{Type: resourceType, ID: payload.ResourceID, Name: payload.ResourceName}
	}

	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		if params.Metadata == nil {
			params.Metadata = map[string]interface{}{}
		}
		params.Metadata["correlationId"] = correlation
	}

	return params, nil
}

func (h *AuditHandler) parseQuery(c *fiber.Ctx) (dto.AuditLogQuery, error) {
	query := dto.AuditLogQuery{
		ActorID:          c.Query("actor_id"),
		Action:           c.Query("action"),
		ResourceType:     c.Query("resource_type"),
		ResourceID:       c.Query("resource_id"),
		RelatedStudentID: c.Query("related_student_id"),
		RelatedClassID:   c.Query("related_class_id"),
		IPAddress:        c.Query("ip_address"),
		RiskLevel:        c.Query("risk_level"),
		Status:           c.Query("status"),
		ComplianceType:   c.Query("compliance_type"),
		Search:           c.Query("search"),
		SortBy:           c.Query("sort_by"),
		SortOrder:        c.Query("sort_order"),
	}

	var err error
	if query.Page, err = parseQueryInt(c, "page"); err != nil {
		return query, errors.New("invalid page")
	}
	if query.Limit, err = parseQueryInt(c, "limit"); err != nil {
		return query, errors.New("invalid limit")
	}
	if query.IsSuspicious, err = parseQueryBool(c, "is_suspicious"); err != nil {
		return query, errors.New("invalid is_suspicious")
	}
	if query.IsComplianceRelevant, err = parseQueryBool(c, "is_compliance_relevant"); err != nil {
		return query, errors.New("invalid is_compliance_relevant")
	}
	includeSensitive, err := parseQueryBool(c, "include_sensitive")
	if err != nil {
		return query, errors.New("invalid include_sensitive")
	}
	query.IncludeSensitive = includeSensitive != nil && *includeSensitive

	if query.StartDate, err = parseQueryTime(c, "start_date", false); err != nil {
		return query, err
	}
	if query.EndDate, err = parseQueryTime(c, "end_date", true); err != nil {
		return query, err
	}
	if query.SnapshotAt, err = parseQueryTime(c, "snapshot_at", false); err != nil {
		return query, err
	}

	return query, nil
}

func (h *AuditHandler) respondError(c *fiber.Ctx, err error, message string) error {
	var queryErr *service.QueryError
	switch {
	case errors.As(err, &queryErr):
		return utils.Fail(c, fiber.StatusBadRequest, queryErr.Error(), fiber.Map{"field": queryErr.Field})
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrAuditLogNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "audit log not found")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(message)
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
