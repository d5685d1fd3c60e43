package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the outcome of a webhook or sync operation. Success=false with
// Error set is an expected business rejection, not a Go error.
type Result struct {
	Success  bool           `json:"success"`
	RecordID uuid.UUID      `json:"record_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ---------------------------------------------------------------------------
// Webhook processing
// ---------------------------------------------------------------------------

// ProcessWebhook runs an inbound webhook through admission, verification,
// mapping and ingestion. The stages run strictly in order: rate limit,
// signature, payload parse, field mapping, connector sync, canonical
// persist. Audit recording is best effort and never fails the webhook.
func (h *Hub) ProcessWebhook(ctx context.Context, systemID string, payload []byte, signatureHeader string, tc shared.TenantContext) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "hub", "process_webhook",
		telemetry.WithAttribute(telemetry.SpanAttrSystemID, systemID),
	)
	defer span.End()

	if err := tc.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Admission control runs first so a flood of webhooks, even for an
	// unregistered system, is rejected before any other work.
	if err := h.limiter.Check(ctx, tc.TenantID.String(), systemID); err != nil {
		telemetry.RecordError(span, err)
		h.recordAudit(ctx, tc, systemID, "process_webhook", shared.AuditOutcomeRejected, err.Error())
		return nil, err
	}

	config, err := h.registry.Config(systemID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := h.validator.Verify(ctx, config.SignatureScheme, systemID, payload, signatureHeader); err != nil {
		telemetry.RecordError(span, err)
		h.recordAudit(ctx, tc, systemID, "process_webhook", shared.AuditOutcomeRejected, err.Error())
		return nil, err
	}

	if !config.Direction.AllowsInbound() {
		return nil, fmt.Errorf("%w: %s is %s", integration.ErrDirectionNotSupported, systemID, config.Direction)
	}

	var external map[string]any
	if err := json.Unmarshal(payload, &external); err != nil {
		return nil, fmt.Errorf("%w: webhook payload is not a JSON object", shared.ErrInvalidInput)
	}

	result, err := h.ingest(ctx, systemID, external, tc)
	outcome := shared.AuditOutcomeSuccess
	errMsg := ""
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
		outcome = shared.AuditOutcomeFailure
		errMsg = err.Error()
	case !result.Success:
		outcome = shared.AuditOutcomeRejected
		errMsg = result.Error
	}
	h.recordAudit(ctx, tc, systemID, "process_webhook", outcome, errMsg)
	return result, err
}

// SyncData moves one payload through a registered integration in the given
// direction. Inbound payloads land in the canonical store; outbound
// payloads are pushed to the external system.
func (h *Hub) SyncData(ctx context.Context, systemID string, direction integration.SyncDirection, data map[string]any, tc shared.TenantContext) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "hub", "sync_data",
		telemetry.WithAttribute(telemetry.SpanAttrSystemID, systemID),
		telemetry.WithAttribute("direction", string(direction)),
	)
	defer span.End()

	tc, err := h.authorize(ctx, tc, PermSyncData)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	config, err := h.registry.Config(systemID)
	if err != nil {
		return nil, err
	}
	switch direction {
	case integration.SyncDirectionInbound:
		if !config.Direction.AllowsInbound() {
			return nil, fmt.Errorf("%w: %s does not allow inbound sync", integration.ErrDirectionNotSupported, systemID)
		}
	case integration.SyncDirectionOutbound:
		if !config.Direction.AllowsOutbound() {
			return nil, fmt.Errorf("%w: %s does not allow outbound sync", integration.ErrDirectionNotSupported, systemID)
		}
	default:
		return nil, fmt.Errorf("%w: sync direction must be INBOUND or OUTBOUND", shared.ErrInvalidInput)
	}

	if err := h.limiter.Check(ctx, tc.TenantID.String(), systemID); err != nil {
		h.recordAudit(ctx, tc, systemID, "sync_data", shared.AuditOutcomeRejected, err.Error())
		return nil, err
	}

	var result *Result
	if direction == integration.SyncDirectionInbound {
		result, err = h.ingest(ctx, systemID, data, tc)
	} else {
		result, err = h.push(ctx, systemID, data, tc)
	}

	outcome := shared.AuditOutcomeSuccess
	errMsg := ""
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
		outcome = shared.AuditOutcomeFailure
		errMsg = err.Error()
	case !result.Success:
		outcome = shared.AuditOutcomeRejected
		errMsg = result.Error
	}
	h.recordAudit(ctx, tc, systemID, "sync_data", outcome, errMsg)
	return result, err
}

// ingest maps an external payload to canonical shape, hands it to the
// connector, and persists the produced record
func (h *Hub) ingest(ctx context.Context, systemID string, external map[string]any, tc shared.TenantContext) (*Result, error) {
	connector, err := h.registry.Connector(systemID)
	if err != nil {
		return nil, err
	}

	mapped, err := h.mapper.TransformInbound(systemID, external)
	if err != nil {
		return nil, err
	}
	for _, warning := range mapped.Warnings {
		h.logger.Warn("inbound field dropped",
			zap.String("system_id", systemID),
			zap.String("warning", warning),
		)
	}

	synced, err := connector.SyncInbound(ctx, mapped.Data, tc)
	if err != nil {
		return nil, err
	}
	if !synced.Success {
		return &Result{Success: false, Error: synced.Error, Warnings: mapped.Warnings}, nil
	}

	kind := "record"
	if k, ok := synced.Data["kind"].(string); ok && k != "" {
		kind = k
	}
	recordID, err := h.coreData.Persist(ctx, kind, synced.Data, tc)
	if err != nil {
		return nil, fmt.Errorf("hub: failed to persist canonical record: %w", err)
	}

	// Fan the stored record out to webhook subscribers
	event := delivery.NewWebhookEvent(kind+".synced", systemID, tc.TenantID, synced.Data)
	if _, err := h.PublishEvent(ctx, event); err != nil {
		h.logger.Warn("failed to publish sync event",
			zap.String("system_id", systemID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}

	return &Result{
		Success:  true,
		RecordID: recordID,
		Data:     synced.Data,
		Warnings: mapped.Warnings,
	}, nil
}

// push maps a canonical payload to external shape and hands it to the
// connector for outbound delivery
func (h *Hub) push(ctx context.Context, systemID string, canonical map[string]any, tc shared.TenantContext) (*Result, error) {
	connector, err := h.registry.Connector(systemID)
	if err != nil {
		return nil, err
	}

	mapped, err := h.mapper.TransformOutbound(systemID, canonical)
	if err != nil {
		return nil, err
	}
	for _, warning := range mapped.Warnings {
		h.logger.Warn("outbound field dropped",
			zap.String("system_id", systemID),
			zap.String("warning", warning),
		)
	}

	pushed, err := connector.SyncOutbound(ctx, mapped.Data, tc)
	if err != nil {
		return nil, err
	}
	if !pushed.Success {
		return &Result{Success: false, Error: pushed.Error, Warnings: mapped.Warnings}, nil
	}
	return &Result{Success: true, Data: pushed.Data, Warnings: mapped.Warnings}, nil
}
