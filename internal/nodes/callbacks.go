package nodes

// CallbackType identifies what the client must do with a callback.
type CallbackType string

const (
	// CallbackScriptTextOutput carries script the client runs as-is.
	CallbackScriptTextOutput CallbackType = "ScriptTextOutputCallback"
	// CallbackHiddenValue is a hidden form value the client fills and returns.
	CallbackHiddenValue CallbackType = "HiddenValueCallback"
)

// Callback is an instruction sent to the client when a node suspends, and
// the client's answer when the attempt resumes.
type Callback struct {
	Type   CallbackType `json:"type"`
	ID     string       `json:"id,omitempty"`
	Script string       `json:"script,omitempty"`
	Value  string       `json:"value,omitempty"`
}

// ScriptTextOutput builds a script callback.
func ScriptTextOutput(script string) Callback {
	return Callback{Type: CallbackScriptTextOutput, Script: script}
}

// HiddenValue builds a hidden-value callback pre-filled with value.
func HiddenValue(id, value string) Callback {
	return Callback{Type: CallbackHiddenValue, ID: id, Value: value}
}
