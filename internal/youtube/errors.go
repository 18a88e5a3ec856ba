package youtube

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

// IsQuotaError reports whether err is a Data API quota or rate-limit rejection.
func IsQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(gerr.Message), "quota")
}

// HTTPStatus returns the upstream status code carried by err, or 0.
func HTTPStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// ErrorBody returns the upstream error payload for debug output.
func ErrorBody(err error) any {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if err == nil {
			return nil
		}
		return map[string]any{"message": err.Error()}
	}
	reasons := make([]string, 0, len(gerr.Errors))
	for _, item := range gerr.Errors {
		reasons = append(reasons, item.Reason)
	}
	return map[string]any{
		"code":    gerr.Code,
		"message": gerr.Message,
		"reasons": reasons,
	}
}
