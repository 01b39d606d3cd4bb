// Package pipeline implements the request-processing pipeline: ordered
// plugin stages around a core operation, with Continue/Halt/HaltWithError
// semantics and a mutable per-request context.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/types"
)

// Stage identifies where a plugin runs relative to the core operation.
type Stage int

const (
	// StagePreOperation runs before the core operation.
	StagePreOperation Stage = iota
	// StageOperation is a sentinel attachment point for observers; the
	// actual business operation is performed by the transport between pre
	// and post.
	StageOperation
	// StagePostOperation runs after the core operation.
	StagePostOperation
)

func (s Stage) String() string {
	switch s {
	case StagePreOperation:
		return "pre-operation"
	case StageOperation:
		return "operation"
	case StagePostOperation:
		return "post-operation"
	}
	return "unknown"
}

// RequestContext flows through the pipeline. It is owned by a single request;
// only one plugin mutates it at a time.
type RequestContext struct {
	RequestID  uuid.UUID
	TenantID   types.TenantID
	Method     string
	Path       string
	Headers    map[string]string
	RawRequest any

	CoreInput     any
	CoreOutput    any
	FinalResponse any

	Attributes map[string]any
	StartTime  time.Time
	Err        error
}

// NewRequestContext creates a context for an incoming request.
func NewRequestContext(method, path string) *RequestContext {
	return &RequestContext{
		RequestID:  uuid.New(),
		Method:     method,
		Path:       path,
		Headers:    make(map[string]string),
		Attributes: make(map[string]any),
		StartTime:  time.Now(),
	}
}

// Elapsed is the wall-clock time since the request entered the pipeline.
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartTime)
}

// SetAttribute stores a value in the context attribute bag.
func (rc *RequestContext) SetAttribute(key string, value any) {
	rc.Attributes[key] = value
}

// GetAttribute reads a value from the attribute bag.
func (rc *RequestContext) GetAttribute(key string) (any, bool) {
	v, ok := rc.Attributes[key]
	return v, ok
}

// outcomeKind is the decision a plugin returns.
type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeHalt
	outcomeHaltWithError
)

// Outcome is the result of a plugin call.
type Outcome struct {
	kind outcomeKind
	err  error
}

// Continue moves to the next plugin in the stage.
func Continue() Outcome { return Outcome{kind: outcomeContinue} }

// Halt stops the current stage; later stages and the core operation still
// run unless the context error is set.
func Halt() Outcome { return Outcome{kind: outcomeHalt} }

// HaltWithError sets the context error and stops pipeline processing
// entirely: no later plugin or stage runs, and the core operation is skipped.
func HaltWithError(err error) Outcome { return Outcome{kind: outcomeHaltWithError, err: err} }

// PluginConfig is the one-shot configuration handed to Init.
type PluginConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Config  map[string]any `mapstructure:"config"`
}

// DefaultPluginConfig returns an enabled, empty configuration.
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{Enabled: true, Config: map[string]any{}}
}

// Plugin is a registered unit of behavior running at a pipeline stage.
type Plugin interface {
	// Name is a stable identifier.
	Name() string
	// Init runs once at startup; failure aborts startup.
	Init(cfg PluginConfig) error
	// Call executes the plugin. It may read and mutate the request context.
	Call(ctx context.Context, rc *RequestContext) Outcome
	// Teardown runs at shutdown, in reverse registration order.
	Teardown() error
}

type registration struct {
	stage  Stage
	plugin Plugin
}

// Runner dispatches plugins per stage. Registration happens at startup; the
// plugin lists are read-only afterwards, so dispatch takes no lock.
type Runner struct {
	stages [3][]Plugin
	order  []registration
	logger *slog.Logger
}

// NewRunner creates an empty pipeline runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Register appends a plugin to a stage. Order within a stage is insertion
// order; there is no implicit dependency resolution.
func (r *Runner) Register(stage Stage, p Plugin) {
	r.stages[stage] = append(r.stages[stage], p)
	r.order = append(r.order, registration{stage: stage, plugin: p})
}

// PluginCount reports how many plugins a stage holds.
func (r *Runner) PluginCount(stage Stage) int {
	return len(r.stages[stage])
}

// Init initializes every plugin in registration order. The configs map is
// keyed by plugin name; missing entries get the default config.
func (r *Runner) Init(configs map[string]PluginConfig) error {
	for _, reg := range r.order {
		cfg, ok := configs[reg.plugin.Name()]
		if !ok {
			cfg = DefaultPluginConfig()
		}
		if err := reg.plugin.Init(cfg); err != nil {
			return types.WrapError(types.KindInternal, err, "initializing plugin %s", reg.plugin.Name())
		}
		r.logger.Debug("plugin initialized", "plugin", reg.plugin.Name(), "stage", reg.stage.String())
	}
	return nil
}

// Teardown tears plugins down in reverse registration order. All teardowns
// run; the first error is returned.
func (r *Runner) Teardown() error {
	var first error
	for i := len(r.order) - 1; i >= 0; i-- {
		p := r.order[i].plugin
		if err := p.Teardown(); err != nil && first == nil {
			first = types.WrapError(types.KindInternal, err, "tearing down plugin %s", p.Name())
		}
	}
	return first
}

// RunStage executes one stage's plugins sequentially. Cancellation is
// checked before each plugin; a HaltWithError outcome sets rc.Err.
func (r *Runner) RunStage(ctx context.Context, stage Stage, rc *RequestContext) {
	for _, p := range r.stages[stage] {
		if err := ctx.Err(); err != nil {
			rc.Err = types.WrapError(types.KindInternal, err, "request cancelled before plugin %s", p.Name())
			return
		}
		switch outcome := p.Call(ctx, rc); outcome.kind {
		case outcomeContinue:
			continue
		case outcomeHalt:
			r.logger.Info("plugin halted stage", "plugin", p.Name(), "stage", stage.String(), "request_id", rc.RequestID)
			return
		case outcomeHaltWithError:
			err := outcome.err
			if err == nil {
				err = types.NewInternalError("plugin %s halted with no error", p.Name())
			}
			r.logger.Error("plugin halted pipeline", "plugin", p.Name(), "stage", stage.String(),
				"request_id", rc.RequestID, "error", err)
			rc.Err = err
			return
		}
	}
}

// Execute runs the full pipeline around the core operation: pre-operation
// plugins, the operation stage observers, op itself, then post-operation
// plugins. A context error set at any point short-circuits the rest.
func (r *Runner) Execute(ctx context.Context, rc *RequestContext, op func(context.Context, *RequestContext) error) *RequestContext {
	r.RunStage(ctx, StagePreOperation, rc)
	if rc.Err != nil {
		return rc
	}

	r.RunStage(ctx, StageOperation, rc)
	if rc.Err != nil {
		return rc
	}

	if op != nil {
		if err := ctx.Err(); err != nil {
			rc.Err = types.WrapError(types.KindInternal, err, "request cancelled before core operation")
			return rc
		}
		if err := op(ctx, rc); err != nil {
			rc.Err = err
			return rc
		}
	}

	r.RunStage(ctx, StagePostOperation, rc)
	return rc
}
