// Package kernlog defines the small logging capability the kernel's
// internal packages depend on, so call sites never import the
// standard library log package directly. Adapted from the Logger
// interface in pkg/consensus/bft_integration.go.
package kernlog

import (
	"log"
	"os"
)

// Logger is the logging capability consumed across the kernel.
type Logger interface {
	Printf(format string, args ...any)
}

type adapter struct {
	inner *log.Logger
}

func (a *adapter) Printf(format string, args ...any) { a.inner.Printf(format, args...) }

// New returns a Logger writing to stderr, prefixed with "[name] ".
func New(name string) Logger {
	return &adapter{inner: log.New(os.Stderr, "["+name+"] ", log.LstdFlags)}
}

// Nop discards everything logged through it. Used as the default for
// components that have not been wired to a real sink.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
