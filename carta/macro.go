package carta

import (
	"encoding/json"
	"fmt"
)

// Macro refers to a frontend value which is evaluated by the frontend when
// the action runs, rather than by the script. Target is a dot-separated
// store path (empty for the root store) and Variable an attribute on it.
type Macro struct {
	Target   string
	Variable string
}

// NewMacro returns a macro for target.variable.
func NewMacro(target, variable string) Macro {
	return Macro{Target: target, Variable: variable}
}

func (m Macro) String() string {
	return fmt.Sprintf("Macro('%s', '%s')", m.Target, m.Variable)
}

// MarshalJSON encodes the macro in the form the frontend recognizes.
func (m Macro) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Target   string `json:"macroTarget"`
		Variable string `json:"macroVariable"`
	}{m.Target, m.Variable})
}

// UnmarshalJSON decodes a macro object.
func (m *Macro) UnmarshalJSON(data []byte) error {
	var raw struct {
		Target   *string `json:"macroTarget"`
		Variable *string `json:"macroVariable"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Target == nil || raw.Variable == nil {
		return fmt.Errorf("carta: not a macro: %s", data)
	}
	m.Target, m.Variable = *raw.Target, *raw.Variable
	return nil
}

// encodeParameters serializes positional action arguments into a JSON array.
func encodeParameters(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("carta: encode parameters: %w", err)
	}
	return string(data), nil
}
