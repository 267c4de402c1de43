package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a file or directory does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat indicates a file extension other than .pdf or .txt.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyDirectory indicates a directory without supported files.
	// It is a warning: the load returns no documents but nothing failed.
	ErrEmptyDirectory = errors.New("no supported documents in directory")

	// ErrInvalidChunkConfig indicates overlap/size values that cannot make progress.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

	// ErrIndexUnavailable indicates the vector store cannot be opened or used.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrAuthentication indicates the LLM API rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited indicates the LLM API quota is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstream indicates any other LLM API failure.
	ErrUpstream = errors.New("upstream error")

	// ErrPipelineNotReady indicates a query before any chunk was indexed.
	ErrPipelineNotReady = errors.New("pipeline not ready")

	// ErrMissingAPIKey indicates generation was requested without GROQ_API_KEY.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidConfig indicates a setting with an out of range value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("empty question")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageLoad     Stage = "load"
	StageChunk    Stage = "chunk"
	StageIndex    Stage = "index"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

// StageError ties a failure to the stage and the item (path or question) it
// happened on.
type StageError struct {
	Stage Stage
	Item  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Item, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err, leaving nil untouched.
func NewStageError(stage Stage, item string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Item: item, Err: err}
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// ConfigError names the setting that failed validation.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Setting, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
