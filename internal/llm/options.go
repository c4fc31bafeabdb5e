package llm

// RequestOptions tunes a single completion call. Nil fields use provider
// defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string

	// JSONObject requests the provider's strict JSON-object output mode.
	// The prompt must still instruct the model to emit JSON; this flag only
	// constrains the decoder.
	JSONObject bool
}

// IntPtr returns a pointer to v, for use in RequestOptions literals.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to v, for use in RequestOptions literals.
func Float64Ptr(v float64) *float64 { return &v }
