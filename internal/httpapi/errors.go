package httpapi

const (
	ErrInvalidJSON  = "invalid json"
	ErrMissingID    = "missing id"
	ErrValidation   = "validation failed"
	ErrDependency   = "dependency error"
	ErrNotFound     = "not found"
	ErrUnauthorized = "unauthorized"
	ErrNotReady     = "charge not provisioned yet"
)
