package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// Status messages go to stderr so command output stays pipeable.
func notify(color, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	notify(colorGreen, "✓ ", format, args...)
}

func printError(format string, args ...any) {
	notify(colorRed, "✗ ", format, args...)
}

func printWarning(format string, args ...any) {
	notify(colorYellow, "⚠ ", format, args...)
}

// printStatus writes an aligned "Label: value" line for the status command.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
