package recovery

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Action is what the caller should do about a failed call.
type Action string

const (
	ActionReauth Action = "reauth"
	ActionRetry  Action = "retry"
	ActionFatal  Action = "fatal"
)

// Context describes the call that failed.
type Context struct {
	ServerID  string
	Operation string
	// Attempt is the 1-based number of the attempt that just failed.
	Attempt int
	// MaxAttempts caps retries; zero means no cap.
	MaxAttempts int
}

// Recommendation is the proposed recovery for an error.
type Recommendation struct {
	Action Action `json:"action"`
	// Automated is true when the caller may act without user involvement.
	Automated bool          `json:"automated"`
	Reason    string        `json:"reason"`
	Delay     time.Duration `json:"delay,omitempty"`
}

// Policy holds backoff parameters.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used by Backoff and Recommend.
var DefaultPolicy = Policy{
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
}

// Backoff computes the exponential delay before retry number attempt+1.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return p.MaxBackoff
	}
	backoff := p.InitialBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > p.MaxBackoff || backoff <= 0 {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Backoff is DefaultPolicy.Backoff.
func Backoff(attempt int) time.Duration {
	return DefaultPolicy.Backoff(attempt)
}

// Recommend proposes how to recover from err.
func Recommend(err error, c Context) Recommendation {
	rec := recommend(err)
	if rec.Action != ActionRetry {
		return rec
	}
	if c.MaxAttempts > 0 && c.Attempt >= c.MaxAttempts {
		return Recommendation{
			Action: ActionFatal,
			Reason: fmt.Sprintf("%s; gave up after %d attempts", rec.Reason, c.Attempt),
		}
	}
	rec.Delay = Backoff(c.Attempt)
	return rec
}

func recommend(err error) Recommendation {
	rpcErr := FromError(err)
	if rpcErr == nil {
		if err == nil {
			return Recommendation{Action: ActionFatal, Reason: "no error to recover from"}
		}
		return Recommendation{Action: ActionRetry, Automated: true, Reason: "server unreachable"}
	}

	switch {
	case rpcErr.Code == CodeUnauthorized:
		return Recommendation{Action: ActionReauth, Reason: "server requires user authorization"}
	case rpcErr.Code == mcp.METHOD_NOT_FOUND:
		return Recommendation{Action: ActionFatal, Reason: "server does not support this method"}
	case rpcErr.Code == mcp.INTERNAL_ERROR:
		return Recommendation{Action: ActionRetry, Automated: true, Reason: "server reported an internal error"}
	case IsServerError(rpcErr):
		return Recommendation{Action: ActionRetry, Automated: true, Reason: "server error"}
	case IsClientError(rpcErr):
		return Recommendation{Action: ActionFatal, Reason: "request rejected by the server"}
	default:
		return Recommendation{Action: ActionFatal, Reason: fmt.Sprintf("unrecognized error code %d", rpcErr.Code)}
	}
}
