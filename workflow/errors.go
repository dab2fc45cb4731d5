package workflow

import (
	"fmt"

	"github.com/castingclouds/circuit-breaker-sub002/types"
)

func errValidation(format string, args ...any) *types.Error {
	return &types.Error{Code: types.ErrInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) *types.Error {
	return &types.Error{Code: types.ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func errActivityNotFound(activity ActivityId) *types.Error {
	return &types.Error{Code: types.ErrActivityNotFound, Message: fmt.Sprintf("activity %q not found in workflow", activity)}
}

func errActivityDisabled(reason string) *types.Error {
	return &types.Error{Code: types.ErrActivityDisabled, Message: reason}
}

func errConflict(format string, args ...any) *types.Error {
	return &types.Error{Code: types.ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func errStorage(cause error) *types.Error {
	return (&types.Error{Code: types.ErrStorageError, Message: "storage operation failed"}).WithCause(cause)
}
