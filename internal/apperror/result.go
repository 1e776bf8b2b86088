package apperror

import "net/http"

// Result is the single response envelope for JSON endpoints. Every outcome,
// success or failure, has the same shape so clients never have to guess
// whether a call "threw".
type Result struct {
	Success bool      `json:"success"`
	Status  int       `json:"status"`
	Data    any       `json:"data"`
	Error   *AppError `json:"error,omitempty"`
}

// OK wraps data in a successful Result. status defaults to 200.
func OK(status int, data any) Result {
	if status == 0 {
		status = http.StatusOK
	}
	return Result{Success: true, Status: status, Data: data}
}

// Fail wraps err in a failed Result. Errors that are not AppErrors become
// generic internal errors so nothing internal reaches the client.
func Fail(err error) Result {
	appErr, ok := As(err)
	if !ok {
		appErr = NewInternal(err)
	}
	return Result{Success: false, Status: appErr.Code, Error: appErr}
}
