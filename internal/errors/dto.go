package errors

// ErrorResponse is the envelope every failed API request renders. Success
// is always false; it exists so clients can switch on one field.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the user-facing hint plus any reportable details the
// builder attached along the chain.
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}
