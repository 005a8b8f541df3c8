// Package errors provides structured error handling for srcindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (paths, file loading)
//   - 3XX: Network errors (embedding/synthesis endpoints)
//   - 4XX: Pipeline errors (empty output at some stage)
//   - 5XX: Retrieval errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and path I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryPipeline indicates an indexing stage produced nothing.
	CategoryPipeline Category = "PIPELINE"
	// CategoryRetrieval indicates search-side errors.
	CategoryRetrieval Category = "RETRIEVAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityError indicates the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodePathNotFound = "ERR_201_PATH_NOT_FOUND"
	ErrCodeLoadFailed   = "ERR_202_LOAD_FAILED"

	// Network errors (300-399)
	ErrCodeEmbedFailed = "ERR_301_EMBED_FAILED"

	// Pipeline errors (400-499)
	ErrCodeNoValidPaths = "ERR_401_NO_VALID_PATHS"
	ErrCodeNoFilesFound = "ERR_402_NO_FILES_FOUND"
	ErrCodeEmptyCorpus  = "ERR_403_EMPTY_CORPUS"

	// Retrieval errors (500-599)
	ErrCodeIndexNotFound   = "ERR_501_INDEX_NOT_FOUND"
	ErrCodeRetrieverBuild  = "ERR_502_RETRIEVER_BUILD"
	ErrCodeRerankFailed    = "ERR_503_RERANK_FAILED"
	ErrCodeSynthesisFailed = "ERR_504_SYNTHESIS_FAILED"
)

// categoryFromCode extracts category from an error code such as
// "ERR_201_PATH_NOT_FOUND".
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryRetrieval
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryPipeline
	default:
		return CategoryRetrieval
	}
}

// severityFromCode determines severity based on error code.
// The always-recoverable degradation codes are warnings: a search
// continues past them with a weaker strategy.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeRetrieverBuild, ErrCodeRerankFailed, ErrCodeSynthesisFailed:
		return SeverityWarning
	}
	return SeverityError
}

// isRecoverableCode reports whether the failing stage degrades rather
// than failing the whole operation.
func isRecoverableCode(code string) bool {
	switch code {
	case ErrCodeRetrieverBuild, ErrCodeRerankFailed, ErrCodeSynthesisFailed, ErrCodeEmptyCorpus:
		return true
	}
	return false
}
