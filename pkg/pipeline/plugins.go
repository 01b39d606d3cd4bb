package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

// tenantScopedSegments mark the routes that require a tenant in context.
var tenantScopedSegments = []string{"/graph/", "/llm/", "/extraction/"}

// RequestLoggingPlugin records method, path and request id at debug level
// on entry to the pipeline.
type RequestLoggingPlugin struct {
	logger *slog.Logger
}

// NewRequestLoggingPlugin creates the plugin.
func NewRequestLoggingPlugin(logger *slog.Logger) *RequestLoggingPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestLoggingPlugin{logger: logger}
}

func (p *RequestLoggingPlugin) Name() string { return "RequestLogging" }

func (p *RequestLoggingPlugin) Init(cfg PluginConfig) error { return nil }

func (p *RequestLoggingPlugin) Call(ctx context.Context, rc *RequestContext) Outcome {
	p.logger.Debug("request",
		"method", rc.Method,
		"path", rc.Path,
		"request_id", rc.RequestID,
	)
	return Continue()
}

func (p *RequestLoggingPlugin) Teardown() error { return nil }

// TenantValidationPlugin requires a tenant id on tenant-scoped routes and
// fails the pipeline when it is missing.
type TenantValidationPlugin struct {
	logger *slog.Logger
}

// NewTenantValidationPlugin creates the plugin.
func NewTenantValidationPlugin(logger *slog.Logger) *TenantValidationPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantValidationPlugin{logger: logger}
}

func (p *TenantValidationPlugin) Name() string { return "TenantValidation" }

func (p *TenantValidationPlugin) Init(cfg PluginConfig) error { return nil }

func (p *TenantValidationPlugin) Call(ctx context.Context, rc *RequestContext) Outcome {
	if !pathRequiresTenant(rc.Path) {
		return Continue()
	}
	if rc.TenantID.IsZero() {
		p.logger.Warn("tenant required but missing", "path", rc.Path, "request_id", rc.RequestID)
		return HaltWithError(types.NewValidationError("tenant ID is required for this operation"))
	}
	if err := rc.TenantID.Validate(); err != nil {
		return HaltWithError(err)
	}
	return Continue()
}

func (p *TenantValidationPlugin) Teardown() error { return nil }

func pathRequiresTenant(path string) bool {
	for _, seg := range tenantScopedSegments {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return false
}

// AuditTrailPlugin records the completed request at info level and stamps
// the context attribute bag.
type AuditTrailPlugin struct {
	logger *slog.Logger
}

// NewAuditTrailPlugin creates the plugin.
func NewAuditTrailPlugin(logger *slog.Logger) *AuditTrailPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrailPlugin{logger: logger}
}

func (p *AuditTrailPlugin) Name() string { return "AuditTrail" }

func (p *AuditTrailPlugin) Init(cfg PluginConfig) error { return nil }

func (p *AuditTrailPlugin) Call(ctx context.Context, rc *RequestContext) Outcome {
	p.logger.Info("audit",
		"method", rc.Method,
		"path", rc.Path,
		"tenant", rc.TenantID,
		"request_id", rc.RequestID,
		"elapsed", rc.Elapsed(),
	)
	rc.SetAttribute("audit_timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	rc.SetAttribute("audit_logged", true)
	return Continue()
}

func (p *AuditTrailPlugin) Teardown() error { return nil }

// RegisterDefaults wires the built-in plugins the way a transport expects
// them: logging and tenant validation before the operation, the audit trail
// after it.
func RegisterDefaults(r *Runner, logger *slog.Logger) {
	r.Register(StagePreOperation, NewRequestLoggingPlugin(logger))
	r.Register(StagePreOperation, NewTenantValidationPlugin(logger))
	r.Register(StagePostOperation, NewAuditTrailPlugin(logger))
}
