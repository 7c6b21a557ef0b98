package errors

import (
	goerrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Code is the stable, user-safe identifier of a failure.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotAuthorized   Code = "NOT_AUTHORIZED"
	CodeNotAParticipant Code = "NOT_A_PARTICIPANT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so any NOT_FOUND
// matches ErrNotFound regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an Error whose code is derived from the HTTP status.
func New(message string, status int) *Error {
	return &Error{Code: codeForStatus(status), Message: message, Status: status}
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	case http.StatusForbidden:
		return CodeNotAuthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func NotAParticipant(message string) *Error {
	return &Error{Code: CodeNotAParticipant, Message: message, Status: http.StatusForbidden}
}

func NotAuthorized(message string) *Error {
	return &Error{Code: CodeNotAuthorized, Message: message, Status: http.StatusForbidden}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

func RateLimited(message string) *Error {
	return &Error{Code: CodeRateLimited, Message: message, Status: http.StatusTooManyRequests}
}

var (
	ErrValidation          = Validation("invalid request")
	ErrUnauthorized        = &Error{Code: CodeUnauthenticated, Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotAuthorized       = NotAuthorized("not authorized")
	ErrNotAParticipant     = NotAParticipant("you are not a participant of this conversation")
	ErrNotFound            = NotFound("not found")
	ErrConversationMissing = NotFound("conversation not found")
	ErrMessageMissing      = NotFound("message not found")
	ErrRateLimited         = RateLimited("too many requests")
	ErrInternalServerError = &Error{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError}
)

// From converts any error into a user-safe *Error. Typed errors pass
// through; everything else is logged and replaced by ErrInternalServerError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if goerrors.As(err, &e) {
		return e
	}
	log.Error("unexpected error", "err", err)
	return ErrInternalServerError
}

// ErrorHandler renders a rate-limit rejection from gin-rate-limit.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.Header("Retry-After", fmt.Sprintf("%.0f", math.Ceil(time.Until(info.ResetTime).Seconds())))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error":   ErrRateLimited.Message,
		"code":    ErrRateLimited.Code,
	})
}
