package executor

import (
	"fmt"

	"github.com/cuemby/avery/pkg/types"
)

// validateArguments checks req.Arguments against a Function's
// input_spec: every required key must be present with the declared
// type (spec §4.9 step 1).
func validateArguments(spec []types.FieldSpec, args map[string]types.Value) error {
	for _, f := range spec {
		v, ok := args[f.Key]
		if !ok {
			if f.Required {
				return fmt.Errorf("invalid arguments: missing required key %q", f.Key)
			}
			continue
		}
		if v.Type != f.Type {
			return fmt.Errorf("invalid arguments: key %q: want type %s, got %s", f.Key, f.Type, v.Type)
		}
	}
	return nil
}

// validateOutputs checks the values accumulated via set_output against
// a Function's output_spec (spec §4.9 step 5).
func validateOutputs(spec []types.FieldSpec, values map[string]types.Value) error {
	for _, f := range spec {
		v, ok := values[f.Key]
		if !ok {
			if f.Required {
				return fmt.Errorf("missing required output %q", f.Key)
			}
			continue
		}
		if v.Type != f.Type {
			return fmt.Errorf("output %q: want type %s, got %s", f.Key, f.Type, v.Type)
		}
	}
	return nil
}
