package engine

import "fmt"

// ErrorCode classifies engine failures surfaced to callers.
type ErrorCode string

const (
	// CodeLoadFailed means a range or partition fetch failed; cached
	// state is left untouched.
	CodeLoadFailed ErrorCode = "LOAD_FAILED"
	// CodeCreateFailed means a remote create failed; the provisional
	// entity has been removed.
	CodeCreateFailed ErrorCode = "CREATE_FAILED"
	// CodeUpdateFailed means a remote update failed; the optimistic
	// state has been rolled back.
	CodeUpdateFailed ErrorCode = "UPDATE_FAILED"
	// CodeDeleteFailed means a remote delete failed; the entity has
	// been reinserted.
	CodeDeleteFailed ErrorCode = "DELETE_FAILED"
)

// Error is a failed engine operation. Transport failures are caught at
// the controller boundary and converted to this type; they never
// propagate past the public action surface in any other form.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}
