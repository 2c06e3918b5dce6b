package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

// render writes v as YAML when requested, otherwise calls text.
func render(w io.Writer, v any, text func(io.Writer)) error {
	if outputFormat == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}
	text(w)
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return successColor.Sprint("enabled")
	}
	return errorColor.Sprint("disabled")
}

// usageColor turns yellow from 80% of a limit and red at the limit.
func usageColor(used, limit int64) *color.Color {
	switch {
	case limit > 0 && used >= limit:
		return errorColor
	case limit > 0 && float64(used) >= 0.8*float64(limit):
		return warnColor
	default:
		return successColor
	}
}
