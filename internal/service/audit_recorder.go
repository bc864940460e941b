package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mssola/useragent"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/observability"
	"github.com/noah-isme/gema-audit-api/internal/repository"
)

const redactedValue = "***"

var (
	errQueueFull   = errors.New("audit queue is full")
	errQueueClosed = errors.New("audit queue is closed")

	redactedHeaders   = map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}, "x-api-key": {}}
	sensitiveMetaKeys = []string{"password", "token", "secret"}
)

// AuditEntry is one "action occurred" call. Source, when set, is read for request context and takes
// precedence over Params.Request.
type AuditEntry struct {
	Params models.AuditLogParams
	Source RequestSource
}

// RecorderConfig tunes the write path.
type RecorderConfig struct {
	Timeout          time.Duration
	QueueSize        int
	Workers          int
	RetentionMaxDays int
}

// AuditRecorder is the single write path of the audit trail. None of its methods return errors:
// failures are logged and the record is discarded.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) *models.AuditLog
	RecordAsync(ctx context.Context, entry AuditEntry) bool
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

type auditRecorder struct {
	repo      repository.AuditLogRepository
	publisher AuditPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	config    RecorderConfig

	queue     chan models.AuditLogParams
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewAuditRecorder constructs the recorder. publisher may be nil.
func NewAuditRecorder(repo repository.AuditLogRepository, publisher AuditPublisher, validate *validator.Validate, logger zerolog.Logger, cfg RecorderConfig) AuditRecorder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetentionMaxDays <= 0 {
		cfg.RetentionMaxDays = models.DefaultRetentionPeriodDays
	}
	if validate == nil {
		validate = validator.New()
	}

	return &auditRecorder{
		repo:      repo,
		publisher: publisher,
		validator: validate,
		logger:    logger.With().Str("component", "audit_recorder").Logger(),
		config:    cfg,
		queue:     make(chan models.AuditLogParams, cfg.QueueSize),
	}
}

func (r *auditRecorder) Record(ctx context.Context, entry AuditEntry) (record *models.AuditLog) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.discard("panic", entry.Params, fmt.Errorf("recovered: %v", recovered))
			record = nil
		}
	}()

	return r.write(ctx, r.prepare(entry))
}

func (r *auditRecorder) RecordAsync(ctx context.Context, entry AuditEntry) (queued bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.discard("panic", entry.Params, fmt.Errorf("recovered: %v", recovered))
			queued = false
		}
	}()

	// The request source is only valid during the caller's request, so it is read now.
	params := r.prepare(entry)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		observability.AuditQueueDropped().Inc()
		r.discard("queue", params, errQueueClosed)
		return false
	}

	select {
	case r.queue <- params:
		observability.AuditQueueDepth().Inc()
		return true
	default:
		observability.AuditQueueDropped().Inc()
		r.discard("queue", params, errQueueFull)
		return false
	}
}

func (r *auditRecorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(base)
		}
		r.logger.Info().Int("workers", r.config.Workers).Int("queue_size", r.config.QueueSize).Msg("audit recorder started")
	})
}

func (r *auditRecorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	// Queued entries are drained even if the workers were never started.
	r.Start(context.Background())

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info().Msg("audit recorder drained")
		return nil
	case <-ctx.Done():
		r.logger.Warn().Int("pending", len(r.queue)).Msg("audit recorder shutdown timed out")
		return ctx.Err()
	}
}

func (r *auditRecorder) worker(ctx context.Context) {
	defer r.wg.Done()
	for params := range r.queue {
		observability.AuditQueueDepth().Dec()
		r.safeWrite(ctx, params)
	}
}

func (r *auditRecorder) safeWrite(ctx context.Context, params models.AuditLogParams) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.discard("panic", params, fmt.Errorf("recovered: %v", recovered))
		}
	}()
	r.write(ctx, params)
}

func (r *auditRecorder) write(ctx context.Context, params models.AuditLogParams) *models.AuditLog {
	if err := r.validator.Struct(params.Actor); err != nil {
		r.discard("validate", params, err)
		return nil
	}

	record, err := models.NewAuditLog(params)
	if err != nil {
		r.discard("validate", params, err)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := r.repo.Create(writeCtx, &record); err != nil {
		r.discard("persist", params, err)
		return nil
	}

	observability.AuditRecords().WithLabelValues(string(record.Action), string(record.Status)).Inc()

	if r.publisher != nil {
		if err := r.publisher.Publish(writeCtx, record); err != nil {
			observability.AuditRecordFailures().WithLabelValues("publish").Inc()
			r.logger.Warn().Err(err).Str("stage", "publish").Str("record_id", record.ID).Msg("failed to publish audit record")
		}
	}

	return &record
}

func (r *auditRecorder) discard(stage string, params models.AuditLogParams, err error) {
	observability.AuditRecordFailures().WithLabelValues(stage).Inc()
	r.logger.Error().
		Err(err).
		Str("stage", stage).
		Str("action", string(params.Action)).
		Str("actor_id", params.Actor.ID).
		Msg("audit record discarded")
}

// prepare resolves request context, redacts secrets and applies the retention ceiling.
func (r *auditRecorder) prepare(entry AuditEntry) models.AuditLogParams {
	params := entry.Params
	if entry.Source != nil {
		params.Request = SnapshotRequest(entry.Source)
	}

	params.Request.Headers = redactHeaders(params.Request.Headers)
	if strings.TrimSpace(params.Request.IPAddress) == "" {
		params.Request.IPAddress = models.UnknownIPAddress
	}

	params.Metadata = maskMetadata(params.Metadata)
	if client := describeUserAgent(params.Request.UserAgent); client != nil {
		if params.Metadata == nil {
			params.Metadata = map[string]interface{}{}
		}
		if _, exists := params.Metadata["client"]; !exists {
			params.Metadata["client"] = client
		}
	}

	if params.RetentionPeriodDays > r.config.RetentionMaxDays {
		params.RetentionPeriodDays = r.config.RetentionMaxDays
	}

	return params
}

func redactHeaders(headers map[string]interface{}) map[string]interface{} {
	if len(headers) == 0 {
		return headers
	}
	result := make(map[string]interface{}, len(headers))
	for key, value := range headers {
		if _, ok := redactedHeaders[strings.ToLower(key)]; ok {
			result[key] = redactedValue
			continue
		}
		result[key] = value
	}
	return result
}

// maskMetadata returns a copy, so callers' maps are never written to.
func maskMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			result[key] = redactedValue
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			result[key] = maskMetadata(nested)
			continue
		}
		result[key] = value
	}
	return result
}

func isSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, marker := range sensitiveMetaKeys {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func describeUserAgent(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	ua := useragent.New(raw)
	browser, version := ua.Browser()
	return map[string]interface{}{
		"browser":         browser,
		"browser_version": version,
		"os":              ua.OS(),
		"mobile":          ua.Mobile(),
		"bot":             ua.Bot(),
	}
}
