package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument     = 1000
	ErrCodeRequestTooLarge     = 1002
	ErrCodeInvalidQuery        = 1003
	ErrCodeInvalidKey          = 1004
	ErrCodeMissingRequired     = 1009
	ErrCodeFileTooLarge        = 1020
	ErrCodeMissingFilename     = 1021
	ErrCodeExtensionNotAllowed = 1022
	ErrCodeNotAnImage          = 1023
	ErrCodeEmptyFile           = 1024

	// Domain state (2xxx)
	ErrCodeImageNotFound      = 2001
	ErrCodeOwnerImageNotFound = 2002

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeImageNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
