package domain

// Stage identifies the pipeline stage in which a file failed.
type Stage string

const (
	StageSubmit    Stage = "submit"
	StagePoll      Stage = "poll"
	StageParse     Stage = "parse" // remote parsing service reported failure
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageStructure Stage = "structure"
)

// Failure codes carried in ConvertError.Code.
const (
	CodeSubmitFailed   = "SUBMIT_FAILED"
	CodePollTimeout    = "POLL_TIMEOUT"
	CodeParseFailed    = "PARSE_FAILED"
	CodeFetchFailed    = "FETCH_FAILED"
	CodeNoContent      = "NO_CONTENT"
	CodeExtractFailed  = "EXTRACT_FAILED"
	CodeBadModelOutput = "BAD_MODEL_OUTPUT"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeStructFailed   = "STRUCTURE_FAILED"
)

// ConvertError describes why a single file could not be converted.
// Message carries the remote-side failure text when available.
type ConvertError struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConvertResult is the outcome for one submitted file: either a
// structured record or a failure descriptor, never both.
type ConvertResult struct {
	Filename string         `json:"filename"`
	Data     *InvoiceRecord `json:"data,omitempty"`
	Error    *ConvertError  `json:"error,omitempty"`
}
