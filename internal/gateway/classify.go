package gateway

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies a failed generation attempt. The presentation voice for
// each kind lives in the persona package; handlers never see raw errors.
type Kind int

const (
	KindTransport Kind = iota
	KindConfiguration
	KindProviderQuota
	KindSafety
)

// ErrNotConfigured is returned before any network attempt when no API key
// is present.
var ErrNotConfigured = errors.New("gateway: api key not configured")

func Classify(err error) Kind {
	if err == nil {
		return KindTransport
	}
	if errors.Is(err, ErrNotConfigured) {
		return KindConfiguration
	}

	if code, ok := apiErrorCode(err); ok {
		switch code {
		case 401, 403:
			return KindConfiguration
		case 429:
			return KindProviderQuota
		}
	}

	return classifyMessage(err.Error())
}

// apiErrorCode unwraps the SDK error in either value or pointer form.
func apiErrorCode(err error) (int, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return byValue.Code, true
	}
	var byPointer *genai.APIError
	if errors.As(err, &byPointer) {
		return byPointer.Code, true
	}
	return 0, false
}

func classifyMessage(raw string) Kind {
	msg := strings.ToLower(raw)
	switch {
	case strings.Contains(msg, "safety") || strings.Contains(msg, "blocked"):
		return KindSafety
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return KindProviderQuota
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return KindConfiguration
	default:
		return KindTransport
	}
}
