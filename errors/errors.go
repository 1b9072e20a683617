package errors

import (
	goerrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Categories. Every specific error below wraps exactly one of them so callers
// can branch on the category with errors.Is.
var (
	ErrAuth               = fmt.Errorf("authentication failed")
	ErrDuplicate          = fmt.Errorf("already exists")
	ErrNotFound           = fmt.Errorf("not found")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrDeliveryFailure    = fmt.Errorf("delivery failure")
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
	ErrPermissionDenied   = fmt.Errorf("permission denied")
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuth)
	ErrBadCredential      = fmt.Errorf("%w: bad credential", ErrAuth)
	ErrTooManyAttempts    = fmt.Errorf("%w: too many attempts", ErrAuth)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrAuth)
	ErrNotAuthenticated   = fmt.Errorf("%w: not authenticated", ErrAuth)
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrDuplicateUsername  = fmt.Errorf("%w: username", ErrDuplicate)
	ErrDuplicateGroupName = fmt.Errorf("%w: group name", ErrDuplicate)
	ErrDuplicateSession   = fmt.Errorf("%w: session", ErrDuplicate)
	ErrAlreadyMember      = fmt.Errorf("%w: membership", ErrDuplicate)

	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("group %w", ErrNotFound)

	ErrNotMember = fmt.Errorf("%w: not a member of the group", ErrPermissionDenied)

	ErrInvalidGroupName = fmt.Errorf("%w: group name", ErrInvalidArgument)
	ErrInvalidUsername  = fmt.Errorf("%w: username", ErrInvalidArgument)
	ErrInvalidPassword  = fmt.Errorf("%w: password", ErrInvalidArgument)
	ErrInvalidMessage   = fmt.Errorf("%w: message", ErrInvalidArgument)
	ErrInvalidFrame     = fmt.Errorf("%w: frame", ErrInvalidArgument)

	ErrQueueFull     = fmt.Errorf("%w: outbound queue full", ErrDeliveryFailure)
	ErrSessionClosed = fmt.Errorf("%w: session closed", ErrDeliveryFailure)

	ErrRateLimited   = fmt.Errorf("rate limit exceeded")
	ErrServerClosed  = fmt.Errorf("server closed")
	ErrIllegalState  = fmt.Errorf("illegal session state transition")
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyWords    = fmt.Errorf("no words have been found")
	ErrInvalidRecord = fmt.Errorf("invalid record")
)

// Code returns the gRPC code matching a domain error. It is what clients see
// in the code field of an error frame.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case goerrors.Is(err, ErrAuth):
		return codes.Unauthenticated
	case goerrors.Is(err, ErrDuplicate):
		return codes.AlreadyExists
	case goerrors.Is(err, ErrNotFound):
		return codes.NotFound
	case goerrors.Is(err, ErrPermissionDenied):
		return codes.PermissionDenied
	case goerrors.Is(err, ErrInvalidArgument):
		return codes.InvalidArgument
	case goerrors.Is(err, ErrStorageUnavailable):
		return codes.Unavailable
	case goerrors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	case goerrors.Is(err, ErrDeliveryFailure), goerrors.Is(err, ErrServerClosed):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}
