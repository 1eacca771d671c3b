// Package monitor forwards warnings and errors to Sentry so that
// schema-refresh failures and FSM data errors are visible outside the
// server's own logs, without coupling the rest of the tree to Sentry
// directly.
package monitor

import (
	"flag"
	"fmt"
	"log"
	"time"

	sentry "github.com/getsentry/sentry-go"
)

const (
	LevelPanic = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var isOn bool

// Init turns monitoring on and starts the heartbeat goroutine. dsn may
// be empty in which case the Sentry SDK is initialized with no
// transport and every call below becomes a no-op via isTest-style
// short circuiting is not attempted -- callers should simply not call
// Init in that case.
func Init(dsn, release string) error {
	isOn = true
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		TracesSampleRate: 1,
		Release:          release,
	})
	if err != nil {
		return fmt.Errorf("monitor: sentry.Init: %w", err)
	}
	CaptureMessage("psgcassd:started")
	go heartbeat()
	return nil
}

// CaptureMessage sends an informational breadcrumb to Sentry.
func CaptureMessage(message string) {
	if !isOn || isTest() {
		return
	}
	sentry.CaptureMessage(message)
	defer sentry.Flush(2 * time.Second)
}

// CaptureException reports a formatted error at the given logger
// level. Only Warn and worse are forwarded; Info/Debug never reach
// Sentry.
func CaptureException(level int, format string, v ...interface{}) {
	if !isOn || isTest() || level > LevelWarn {
		return
	}
	err := fmt.Errorf(format, v...)
	sentry.CaptureException(err)
	defer sentry.Flush(2 * time.Second)
}

// heartbeat emits a session breadcrumb once a day so a wedged process
// (one that stopped refreshing schema but is still alive) is
// distinguishable from a crashed one.
func heartbeat() {
	for i := 0; ; i++ {
		CaptureMessage(fmt.Sprintf("psgcassd:heartbeat:%d", i))
		time.Sleep(24 * time.Hour)
	}
}

// IsOn reports whether monitoring has been initialized.
func IsOn() bool {
	return isOn
}

func isTest() bool {
	return flag.Lookup("test.v") != nil
}

// MustInit is a convenience wrapper for callers (the cmd/ entrypoint)
// that want a fatal startup error rather than a returned one.
func MustInit(dsn, release string) {
	if dsn == "" {
		return
	}
	if err := Init(dsn, release); err != nil {
		log.Fatal(err)
	}
}
