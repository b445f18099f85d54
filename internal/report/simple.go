package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/deepresearch/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display at the end of a run.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables per-source detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with the full source list.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeSources(&sb, report)
	w.writeFailures(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        RESEARCH RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Topic:      %s\n", firstLine(report.Topic)))
	sb.WriteString(fmt.Sprintf("Generated:  %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Iterations: %d\n", report.Iteration))
	sb.WriteString("\n")
}

// writeSummary writes the fetch outcome summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FETCH SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  ATTEMPTED: %d\n", report.Attempted))
	sb.WriteString(fmt.Sprintf("  FETCHED:   %d\n", report.Succeeded()-report.CachedCount()))
	sb.WriteString(fmt.Sprintf("  CACHED:    %d\n", report.CachedCount()))
	sb.WriteString(fmt.Sprintf("  FAILED:    %d\n", report.Failed()))
	sb.WriteString("\n")
}

// writeSources writes the consulted sources section.
// The full list is only shown in verbose mode; it can run to hundreds
// of URLs on a large-budget run.
func (w *SimpleWriter) writeSources(sb *strings.Builder, report *model.RunReport) {
	if !w.verbose {
		return
	}
	if len(report.Sources) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CONSULTED SOURCES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Sources) == 0 {
		sb.WriteString("  No sources fetched\n")
	} else {
		for _, source := range report.Sources {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", outcomeIndicator(source.Outcome), source.URL))
			if source.Title != "" {
				sb.WriteString(fmt.Sprintf("      Title: %s\n", source.Title))
			}
		}
	}
	sb.WriteString("\n")
}

// writeFailures writes the failed fetch section.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.RunReport) {
	if !report.HasFailures() && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILED FETCHES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if !report.HasFailures() {
		sb.WriteString("  No failures\n")
	} else {
		for _, url := range report.FailedURLs {
			sb.WriteString(fmt.Sprintf("  [x] %s\n", url))
		}
	}
	sb.WriteString("\n")
}

// outcomeIndicator returns a visual indicator for a source outcome.
func outcomeIndicator(outcome model.SourceOutcome) string {
	switch outcome {
	case model.OutcomeFetched:
		return "+"
	case model.OutcomeCached:
		return "~"
	case model.OutcomeFailed:
		return "x"
	default:
		return "?"
	}
}

// firstLine returns the first content line of s, for one-line display
// of a topic file that may hold a whole markdown document. Heading lines
// are skipped; a document holding nothing but headings falls back to the
// first heading's text.
func firstLine(s string) string {
	var heading string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if heading == "" {
				heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
			continue
		}
		return line
	}
	return heading
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Full sources report: sources.md / Answer: answer.md\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
