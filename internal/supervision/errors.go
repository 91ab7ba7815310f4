package supervision

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error modules.
const (
	ModuleIO          = "io"
	ModuleSupervision = "supervision"
	ModuleTemplate    = "template"
)

// Error codes.
const (
	CodeInvalidEngine           = 101
	CodeInvalidPath             = 103
	CodeCorrespondenceNotFound  = 301
	CodeInvalidEngineConfig     = 302
	CodeTemplateInvalidEngine   = 401
	CodeTemplateIDNotUnique     = 403
	CodeTemplateInvalidKeypoint = 404
	CodeTemplateInvalidFeature  = 405
)

// Error is a classified failure. Regular errors are caused by end-user input
// (the analyzed image) rather than by a misconfigured template.
type Error struct {
	Module   string
	Code     int
	CodeText string
	While    string
	Problem  string
	Regular  bool
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error %d (%s) %s %s", e.Module, e.Code, e.CodeText, e.While, e.Problem)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Serialize returns a JSON-friendly view of the error.
func (e *Error) Serialize() map[string]any {
	var cause any
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	return map[string]any{
		"code":         e.Code,
		"code_text":    e.CodeText,
		"module":       e.Module,
		"while_text":   e.While,
		"problem_text": e.Problem,
		"is_regular":   e.Regular,
		"cause":        cause,
	}
}

var (
	ErrInvalidEngine           = &Error{Module: ModuleIO, Code: CodeInvalidEngine, CodeText: "INVALID_IO_ENGINE"}
	ErrInvalidPath             = &Error{Module: ModuleIO, Code: CodeInvalidPath, CodeText: "INVALID_PATH"}
	ErrCorrespondenceNotFound  = &Error{Module: ModuleSupervision, Code: CodeCorrespondenceNotFound, CodeText: "CORRESPONDENCE_NOT_FOUND"}
	ErrInvalidConfig           = &Error{Module: ModuleSupervision, Code: CodeInvalidEngineConfig, CodeText: "INVALID_ENGINE_CONFIG"}
	ErrTemplateInvalidEngine   = &Error{Module: ModuleTemplate, Code: CodeTemplateInvalidEngine, CodeText: "INVALID_SUPERVISION_ENGINE"}
	ErrTemplateIDNotUnique     = &Error{Module: ModuleTemplate, Code: CodeTemplateIDNotUnique, CodeText: "ID_NOT_UNIQUE"}
	ErrTemplateInvalidKeypoint = &Error{Module: ModuleTemplate, Code: CodeTemplateInvalidKeypoint, CodeText: "INVALID_KEYPOINT"}
	ErrTemplateInvalidFeature  = &Error{Module: ModuleTemplate, Code: CodeTemplateInvalidFeature, CodeText: "INVALID_FEATURE"}

	// ErrUninitialized is returned when a result field is read before it was set.
	ErrUninitialized = errors.New("supervision result not initialized")
	// ErrDegenerateWeights is returned when no match carries a significant weight.
	ErrDegenerateWeights = errors.New("no match has a significant weight")
)

// NewError copies the classification of sentinel into a new error.
func NewError(sentinel *Error, while, problem string, cause error) *Error {
	return &Error{
		Module:   sentinel.Module,
		Code:     sentinel.Code,
		CodeText: sentinel.CodeText,
		While:    while,
		Problem:  problem,
		Cause:    cause,
	}
}
