package instruction

// Result is the outcome of executing one instruction. Exactly one Result is
// produced per dispatched instruction and it is never mutated after return.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Succeed creates a success result.
func Succeed(message string) Result {
	return Result{Success: true, Message: message}
}

// SucceedWith creates a success result carrying data.
func SucceedWith(message string, data map[string]any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail creates a failure result with an error string.
func Fail(errMsg string) Result {
	return Result{Success: false, Error: errMsg}
}

// Declined creates the non-error refusal result used when a user declines a
// confirmation: success=false with a message but no error.
func Declined(message string) Result {
	return Result{Success: false, Message: message}
}
