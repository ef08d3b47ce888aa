package downstream

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// isRecoverable reports whether a transport error is worth one more
// attempt. Timeouts and connection-level failures usually are; an
// explicitly cancelled context never is.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRecoverable(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Dial and reset failures are the transient ones; everything else
		// is likely a misconfigured endpoint.
		return opErr.Op == "dial" || opErr.Op == "read"
	}

	return false
}
