package main

import (
	"strings"

	mcppkg "github.com/ThinkInAIXYZ/go-mcp/pkg"
)

// streamableHTTPLogger returns a go-mcp Logger that downgrades some common
// client-side session handshake errors (HTTP 400) from Error to Info: a
// client reconnecting with a stale Mcp-Session-Id is an expected condition,
// not a server failure.
func streamableHTTPLogger() mcppkg.Logger {
	return &filteredMCPLogger{base: mcppkg.DefaultLogger}
}

type filteredMCPLogger struct {
	base mcppkg.Logger
}

func (l *filteredMCPLogger) Debugf(format string, a ...any) { l.base.Debugf(format, a...) }
func (l *filteredMCPLogger) Infof(format string, a ...any)  { l.base.Infof(format, a...) }
func (l *filteredMCPLogger) Warnf(format string, a ...any)  { l.base.Warnf(format, a...) }

func (l *filteredMCPLogger) Errorf(format string, a ...any) {
	if shouldDowngradeStreamableHTTPError(format, a...) {
		l.base.Infof(format, a...)
		return
	}
	l.base.Errorf(format, a...)
}

func shouldDowngradeStreamableHTTPError(format string, a ...any) bool {
	// Upstream format in streamable_http_server.go:
	// "streamableHTTPServerTransport Error: code: %d, message: %s"
	if !strings.Contains(format, "streamableHTTPServerTransport Error:") {
		return false
	}
	if len(a) < 2 {
		return false
	}

	code, ok := a[0].(int)
	if !ok {
		return false
	}
	msg, ok := a[1].(string)
	if !ok {
		return false
	}
	if code != 400 {
		return false
	}

	m := strings.ToLower(msg)
	if m == "lack session" || strings.Contains(m, "missing session") {
		return true
	}
	return false
}
