// Package testhelpers provides test-only collaborators shared across the
// module's integration-style tests.
package testhelpers

import (
	"fmt"
	"strings"

	"github.com/onsi/ginkgo/v2"
)

// ANSI color codes used by GinkgoLogger's level-tagged output.
const (
	ColorGray   = "\x1b[90m"
	ColorBlue   = "\x1b[34m"
	ColorYellow = "\x1b[33m"
	ColorRed    = "\x1b[31m"
	ColorReset  = "\x1b[0m"
)

// GinkgoLogger implements log.Logger by writing to Ginkgo's thread-safe
// GinkgoWriter, for suites that drive a Dispatcher or Driver under
// ginkgo.RunSpecs and want its output interleaved correctly with spec
// reporting instead of racing stdout.
type GinkgoLogger struct{}

// NewGinkgoLogger returns a GinkgoLogger.
func NewGinkgoLogger() *GinkgoLogger {
	return &GinkgoLogger{}
}

// Debug implements log.Logger.
func (l *GinkgoLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", ColorGray, msg, keysAndValues) }

// Info implements log.Logger.
func (l *GinkgoLogger) Info(msg string, keysAndValues ...any) { l.log("INFO", ColorBlue, msg, keysAndValues) }

// Warn implements log.Logger.
func (l *GinkgoLogger) Warn(msg string, keysAndValues ...any) { l.log("WARN", ColorYellow, msg, keysAndValues) }

// Error implements log.Logger.
func (l *GinkgoLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", ColorRed, msg, keysAndValues) }

func (l *GinkgoLogger) log(level, color, msg string, args []any) {
	formatted := msg
	if len(args) > 0 {
		pairs := make([]string, 0, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			pairs = append(pairs, fmt.Sprintf("%s=%v", args[i], args[i+1]))
		}
		formatted = fmt.Sprintf("%s (%s)", msg, strings.Join(pairs, ", "))
	}
	ginkgo.GinkgoWriter.Printf("%s[%s] %s%s\n", color, level, formatted, ColorReset)
}
