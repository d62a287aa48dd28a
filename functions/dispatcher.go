package functions

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Callbacks receive validated tool arguments. Nil callbacks are skipped.
type Callbacks struct {
	OnSwitchModule func(module string)
	OnToggleScan   func(active bool)
	OnToggleGhost  func(active bool)
}

type capability struct {
	decl     *genai.FunctionDeclaration
	resolved *jsonschema.Resolved
	invoke   func(args map[string]any) error
}

func newCapability[T any](name, description string, invoke func(T)) (*capability, error) {
	schema, err := argSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %s: %w", name, err)
	}
	return &capability{
		decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: description,
			Parameters:  convSchema(schema),
		},
		resolved: resolved,
		invoke: func(args map[string]any) error {
			raw, err := sonic.Marshal(args)
			if err != nil {
				return err
			}
			var v T
			if err := sonic.Unmarshal(raw, &v); err != nil {
				return err
			}
			if invoke != nil {
				invoke(v)
			}
			return nil
		},
	}, nil
}

// Dispatcher maps tool calls to device callbacks and builds the correlated
// responses.
type Dispatcher struct {
	caps  map[string]*capability
	order []string
	log   zerolog.Logger
}

// NewDispatcher builds the capability table. modules is offered to the
// model as the enum of switch_module; calls are not checked against it.
func NewDispatcher(modules []string, cb Callbacks, log zerolog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{caps: make(map[string]*capability), log: log}

	switchCap, err := newCapability(SwitchModule,
		"Switch the active tool module on the OmniStream device.",
		func(a SwitchModuleArgs) {
			if cb.OnSwitchModule != nil {
				cb.OnSwitchModule(a.Module)
			}
		})
	if err != nil {
		return nil, err
	}
	if prop := switchCap.decl.Parameters.Properties["module"]; prop != nil && len(modules) > 0 {
		prop.Enum = append([]string(nil), modules...)
	}

	scanCap, err := newCapability(ToggleScan,
		"Start or stop the signal scanning/capture process.",
		func(a ToggleScanArgs) {
			if cb.OnToggleScan != nil {
				cb.OnToggleScan(a.Active)
			}
		})
	if err != nil {
		return nil, err
	}

	ghostCap, err := newCapability(ToggleGhostMode,
		"Enable or disable stealth/ghost mode for low-profile operations.",
		func(a ToggleGhostArgs) {
			if cb.OnToggleGhost != nil {
				cb.OnToggleGhost(a.Active)
			}
		})
	if err != nil {
		return nil, err
	}

	for _, c := range []*capability{switchCap, scanCap, ghostCap} {
		d.caps[c.decl.Name] = c
		d.order = append(d.order, c.decl.Name)
	}
	return d, nil
}

// Tools returns the declarations for the live session config.
func (d *Dispatcher) Tools() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(d.order))
	for _, name := range d.order {
		decls = append(decls, d.caps[name].decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Dispatch runs one call and returns its response. Unknown names succeed
// without side effects; arguments of the wrong shape skip the callback and
// produce an error response.
func (d *Dispatcher) Dispatch(fc *genai.FunctionCall) *genai.FunctionResponse {
	resp := &genai.FunctionResponse{ID: fc.ID, Name: fc.Name}

	c, ok := d.caps[fc.Name]
	if !ok {
		d.log.Warn().Str("function", fc.Name).Str("call_id", fc.ID).Msg("⚠️ Unknown function called, ignoring")
		resp.Response = map[string]any{"result": "success"}
		return resp
	}

	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := c.resolved.Validate(args); err != nil {
		d.log.Warn().Err(err).Str("function", fc.Name).Str("call_id", fc.ID).Msg("⚠️ Rejected tool arguments")
		resp.Response = map[string]any{"error": fmt.Sprintf("invalid arguments for %s: %v", fc.Name, err)}
		return resp
	}
	if err := c.invoke(args); err != nil {
		d.log.Warn().Err(err).Str("function", fc.Name).Str("call_id", fc.ID).Msg("⚠️ Failed to decode tool arguments")
		resp.Response = map[string]any{"error": fmt.Sprintf("invalid arguments for %s: %v", fc.Name, err)}
		return resp
	}

	d.log.Info().Str("function", fc.Name).Str("call_id", fc.ID).Interface("args", args).Msg("🔧 Function call handled")
	resp.Response = map[string]any{"result": "success"}
	return resp
}
