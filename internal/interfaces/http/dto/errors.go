package dto

import "net/http"

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	ErrCodeValidation  = "ERR_VALIDATION"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "RATE_LIMIT_EXCEEDED"
)

// ErrorCodeHTTPStatus maps settlement error codes to HTTP status codes.
// The codes are part of the public contract; automated callers branch on
// them, so the mapping must stay stable.
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,
	ErrCodeValidation:  http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,

	// Deal validation -> 400 Bad Request
	"INVALID_ASSET_CONTRACT": http.StatusBadRequest,
	"INVALID_ASSET_ID":       http.StatusBadRequest,
	"INVALID_BUYER":          http.StatusBadRequest,
	"INVALID_PRICE":          http.StatusBadRequest,
	"INVALID_FINANCING_MODE": http.StatusBadRequest,
	"INVALID_CALLDATA":       http.StatusBadRequest,
	"INVALID_ADAPTER":        http.StatusBadRequest,
	"INVALID_AMOUNT":         http.StatusBadRequest,
	"INVALID_PAYER":          http.StatusBadRequest,
	"INVALID_RATIO":          http.StatusBadRequest,
	"INVALID_LENDER_ADDRESS": http.StatusBadRequest,

	// Settlement preconditions -> 422 Unprocessable Entity
	"INSUFFICIENT_BALANCE":   http.StatusUnprocessableEntity,
	"INSUFFICIENT_ALLOWANCE": http.StatusUnprocessableEntity,
	"BAD_SIGNATURE":          http.StatusUnprocessableEntity,
	"NONCE_REPLAY":           http.StatusUnprocessableEntity,
	"DEBT_NOT_CLEARED":       http.StatusUnprocessableEntity,

	// Collaborator failures -> 502 Bad Gateway
	"MARKETPLACE_FULFILLMENT_FAILED": http.StatusBadGateway,
	"ADAPTER_EXECUTION_FAILED":       http.StatusBadGateway,
	"LENDING_FACILITY_FAILURE":       http.StatusBadGateway,
	"CURRENCY_TOKEN_FAILURE":         http.StatusBadGateway,
	"ASSET_TOKEN_FAILURE":            http.StatusBadGateway,

	// State conflicts -> 409 Conflict / 404 Not Found
	"DUPLICATE_FINANCING":  http.StatusConflict,
	"SETTLEMENT_IN_FLIGHT": http.StatusConflict,
	"CONCURRENCY_CONFLICT": http.StatusConflict,
	"POSITION_NOT_FOUND":   http.StatusNotFound,
	"NOT_FOUND":            http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not mapped.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
