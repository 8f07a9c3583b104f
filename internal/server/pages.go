package server

import (
	"fmt"
	"html"
	"net/http"
)

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - mcpgate</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #16213e;
            color: #e4e4e7;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .card {
            background: rgba(255, 255, 255, 0.05);
            border-radius: 12px;
            padding: 40px;
            max-width: 460px;
            text-align: center;
        }
        h1 { font-size: 22px; margin-bottom: 12px; color: %s; }
        p { font-size: 14px; line-height: 1.6; color: #a1a1aa; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`

// renderSuccessPage tells the user the window can be closed.
func renderSuccessPage(w http.ResponseWriter) {
	renderPage(w, http.StatusOK, "Authentication Successful", "#4ade80",
		"The server is now connected. You can close this window and return to your client.")
}

// renderErrorPage renders a failed callback with the given status.
func renderErrorPage(w http.ResponseWriter, status int, message string) {
	renderPage(w, status, "Authentication Failed", "#f87171", message)
}

func renderPage(w http.ResponseWriter, status int, title, color, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	safeTitle := html.EscapeString(title)
	_, _ = fmt.Fprintf(w, pageTemplate, safeTitle, color, safeTitle, html.EscapeString(message))
}
