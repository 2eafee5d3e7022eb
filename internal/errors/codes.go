// Package errors provides structured error handling for pubrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and environment errors
//   - 2XX: Graph database errors
//   - 3XX: Embedding errors
//   - 4XX: Index storage errors
//   - 5XX: Search and answer generation errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig  Category = "CONFIG"
	CategoryGraph   Category = "GRAPH"
	CategoryEmbed   Category = "EMBED"
	CategoryStorage Category = "STORAGE"
	CategorySearch  Category = "SEARCH"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeEnvMissing     = "ERR_103_ENV_MISSING"
	ErrCodeWorkspace      = "ERR_104_WORKSPACE"

	// Graph errors (200-299)
	ErrCodeGraphConnect     = "ERR_201_GRAPH_CONNECT"
	ErrCodeGraphQuery       = "ERR_202_GRAPH_QUERY"
	ErrCodeGraphEmpty       = "ERR_203_GRAPH_EMPTY"
	ErrCodeGraphUnavailable = "ERR_204_GRAPH_UNAVAILABLE"

	// Embedding errors (300-399)
	ErrCodeEmbedUnavailable = "ERR_301_EMBED_UNAVAILABLE"
	ErrCodeEmbedFailed      = "ERR_302_EMBED_FAILED"
	ErrCodeEmbedTimeout     = "ERR_303_EMBED_TIMEOUT"

	// Storage errors (400-499)
	ErrCodeStoreLocked       = "ERR_401_STORE_LOCKED"
	ErrCodeStoreCorrupt      = "ERR_402_STORE_CORRUPT"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeStoreIO           = "ERR_404_STORE_IO"
	ErrCodeIndexNotFound     = "ERR_405_INDEX_NOT_FOUND"

	// Search and answer errors (500-599)
	ErrCodeQueryEmpty     = "ERR_501_QUERY_EMPTY"
	ErrCodeSearchFailed   = "ERR_502_SEARCH_FAILED"
	ErrCodeGenerateFailed = "ERR_503_GENERATE_FAILED"
	ErrCodeInternal       = "ERR_599_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategorySearch
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryGraph
	case '3':
		return CategoryEmbed
	case '4':
		return CategoryStorage
	default:
		return CategorySearch
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeDimensionMismatch:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeGraphConnect, ErrCodeGraphUnavailable, ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}
