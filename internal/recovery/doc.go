// Package recovery classifies JSON-RPC errors from MCP servers and proposes
// what the caller should do: authorize again, retry with backoff, or give up.
//
//	if err := session.Ping(ctx); err != nil {
//		rec := recovery.Recommend(err, recovery.Context{ServerID: id, Attempt: n, MaxAttempts: 3})
//		if rec.Action == recovery.ActionRetry && rec.Automated {
//			time.Sleep(rec.Delay)
//		}
//	}
package recovery
