// Package functions declares the device control tools offered to the live
// assistant and dispatches the calls it makes.
package functions

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// Tool names understood by the dispatcher.
const (
	SwitchModule    = "switch_module"
	ToggleScan      = "toggle_scan"
	ToggleGhostMode = "toggle_ghost_mode"
)

type SwitchModuleArgs struct {
	Module string `json:"module" jsonschema:"The name of the module to switch to."`
}

type ToggleScanArgs struct {
	Active bool `json:"active" jsonschema:"True to start scanning, false to stop."`
}

type ToggleGhostArgs struct {
	Active bool `json:"active" jsonschema:"True to enable ghost mode, false to disable."`
}

// argSchema derives the shape schema for T. Extra properties are allowed.
func argSchema[T any]() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	s.AdditionalProperties = nil
	return s, nil
}

// convSchema turns a JSON schema into the genai declaration form.
func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}
	if len(enums) > 0 {
		gs.Enum = enums
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
