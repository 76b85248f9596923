package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// classifyOllamaError translates transport failures into domain kinds the
// executor understands. 429 maps to rate limiting, other retryable statuses
// and network errors to temporary failures; everything else passes through.
func classifyOllamaError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return domain.WrapError(domain.ErrRateLimited, "ollama "+operation, err)
		}
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return domain.WrapError(domain.ErrTemporary, "ollama "+operation, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, "ollama "+operation, err)
	}

	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
