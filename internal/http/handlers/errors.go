package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, so
// existing values never change meaning.
const (
	// Request shape and caller identity.
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found" // missing and not-owned look the same
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeNotImplemented   = "not_implemented"
	ErrCodeInternal         = "internal_error"

	// Persistence failures, one per prompt operation.
	ErrCodeListFailed   = "list_failed"
	ErrCodeGetFailed    = "get_failed"
	ErrCodeCreateFailed = "create_failed"
	ErrCodeUpdateFailed = "update_failed"
	ErrCodeDeleteFailed = "delete_failed"
	ErrCodeSearchFailed = "search_failed"
)
