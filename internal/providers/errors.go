package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// Sentinels for failures that carry no SDK type or HTTP status. Providers and
// test doubles wrap these so ClassifyError does not fall back to matching text.
var (
	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// ClassifyError maps a provider failure to a retry class. Typed SDK errors and
// sentinels are checked before falling back to message matching.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return ErrorQuota
	case errors.Is(err, ErrRateLimited):
		return ErrorRate
	case errors.Is(err, ErrContextTooLong):
		return ErrorContext
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient
	case errors.Is(err, ErrPermanent):
		return ErrorPermanent
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTransient
	}
	if code := statusCode(err); code != 0 {
		if t, ok := classifyStatus(code, strings.ToLower(err.Error())); ok {
			return t
		}
	}

	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Retryable reports whether the same provider may succeed on a later attempt.
func Retryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorRate, ErrorTransient:
		return true
	}
	return false
}

func statusCode(err error) int {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func classifyStatus(code int, msg string) (ErrorType, bool) {
	switch {
	case code == http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "credit") {
			return ErrorQuota, true
		}
		return ErrorRate, true
	case code == http.StatusPaymentRequired:
		return ErrorQuota, true
	case code == http.StatusRequestEntityTooLarge:
		return ErrorContext, true
	case code == http.StatusRequestTimeout, code >= 500:
		return ErrorTransient, true
	case code == http.StatusBadRequest && (strings.Contains(msg, "context") || strings.Contains(msg, "too long")):
		return ErrorContext, true
	case code >= 400:
		return ErrorPermanent, true
	}
	return "", false
}

// HTTPStatusError is returned by providers that talk raw HTTP.
type HTTPStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return e.Provider + " error " + http.StatusText(e.StatusCode) + ": " + e.Body
}
