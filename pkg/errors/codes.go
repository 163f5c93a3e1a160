package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.  Codes
// are "<MODULE>_<NNN>" so the module can be recovered with ModuleForCode.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_015"
	ErrCodeStorageError       ErrorCode = "COMMON_016"
)

// Generation Module Error Codes
const (
	ErrCodeGenerationFailed      ErrorCode = "GEN_001"
	ErrCodeGenerationMalformed   ErrorCode = "GEN_002"
	ErrCodeGenerationEmptySeed   ErrorCode = "GEN_003"
	ErrCodeGenerationSuperseded  ErrorCode = "GEN_004"
	ErrCodeGenerationNoSelection ErrorCode = "GEN_005"
)

// History Module Error Codes
const (
	ErrCodeHistoryNotFound      ErrorCode = "HIST_001"
	ErrCodeHistoryInvalid       ErrorCode = "HIST_002"
	ErrCodeHistoryPersistFailed ErrorCode = "HIST_003"
	ErrCodeHistoryArchiveFailed ErrorCode = "HIST_004"
)

// Upstream (External Generation Service) Error Codes
const (
	ErrCodeUpstreamUnavailable ErrorCode = "UPS_001"
	ErrCodeUpstreamRejected    ErrorCode = "UPS_002"
	ErrCodeUpstreamBadResponse ErrorCode = "UPS_003"
)

// Short aliases used at call sites.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")

	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeUnauthorized       = ErrCodeUnauthorized
	CodeForbidden          = ErrCodeForbidden
	CodeNotFound           = ErrCodeNotFound
	CodeConflict           = ErrCodeConflict
	CodeRateLimit          = ErrCodeTooManyRequests
	CodeServiceUnavailable = ErrCodeServiceUnavailable
	CodeTimeout            = ErrCodeTimeout
	CodeValidation         = ErrCodeValidation
	CodeSerialization      = ErrCodeSerialization
	CodeDatabaseError      = ErrCodeDatabaseError
	CodeCacheError         = ErrCodeCacheError
	CodeExternalService    = ErrCodeExternalService
	CodeMessageQueueError  = ErrCodeMessageQueueError
	CodeStorageError       = ErrCodeStorageError

	CodeHistoryNotFound = ErrCodeHistoryNotFound
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,

	ErrCodeGenerationFailed:      http.StatusBadGateway,
	ErrCodeGenerationMalformed:   http.StatusBadGateway,
	ErrCodeGenerationEmptySeed:   http.StatusBadRequest,
	ErrCodeGenerationSuperseded:  http.StatusConflict,
	ErrCodeGenerationNoSelection: http.StatusNotFound,

	ErrCodeHistoryNotFound:      http.StatusNotFound,
	ErrCodeHistoryInvalid:       http.StatusBadRequest,
	ErrCodeHistoryPersistFailed: http.StatusInternalServerError,
	ErrCodeHistoryArchiveFailed: http.StatusInternalServerError,

	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrCodeUpstreamRejected:    http.StatusBadGateway,
	ErrCodeUpstreamBadResponse: http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeGenerationFailed:      "molecule generation failed",
	ErrCodeGenerationMalformed:   "malformed generation response",
	ErrCodeGenerationEmptySeed:   "seed structure is empty",
	ErrCodeGenerationSuperseded:  "generation superseded by a newer request",
	ErrCodeGenerationNoSelection: "history entry not found",

	ErrCodeHistoryNotFound:      "history record not found",
	ErrCodeHistoryInvalid:       "invalid history record",
	ErrCodeHistoryPersistFailed: "failed to persist history record",
	ErrCodeHistoryArchiveFailed: "failed to archive history record",

	ErrCodeUpstreamUnavailable: "generation service unavailable",
	ErrCodeUpstreamRejected:    "generation service rejected the request",
	ErrCodeUpstreamBadResponse: "generation service returned an invalid response",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
