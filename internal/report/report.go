package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dialectatlas/tonelab/internal/analysis"
	"github.com/dialectatlas/tonelab/internal/job"
)

const ruleWidth = 70

// Render writes a full result summary to w: source info, per-module
// metric sections, detected segments and tone units.
func Render(w io.Writer, r *job.Result) {
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(w, "ANALYSIS: job %s\n", r.Meta.JobID)
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))

	fmt.Fprintf(w, "Mode:        %s\n", r.Meta.Mode)
	fmt.Fprintf(w, "Duration:    %.2f s\n", r.Meta.DurationS)
	fmt.Fprintf(w, "Sample Rate: %d Hz\n", r.Meta.SampleRate)
	fmt.Fprintf(w, "Modules:     %s\n", strings.Join(r.Meta.Modules, ", "))
	fmt.Fprintln(w)

	for _, name := range sortedModules(r.Summary) {
		renderModule(w, name, r.Summary[name])
	}

	if len(r.Segments) > 0 {
		renderSegments(w, r.Segments)
	}
	if len(r.Units) > 0 {
		renderUnits(w, r.Units)
	}
}

func sortedModules(summary map[string]any) []string {
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n%s\n", strings.ToUpper(title), strings.Repeat("-", len(title)))
}

// renderModule prints one module's summary block. Known scalar keys get
// ordered, unit-annotated lines; anything unrecognized falls back to a
// key: value listing so new summary fields are never silently dropped.
func renderModule(w io.Writer, name string, summary any) {
	fields, ok := summary.(map[string]any)
	if !ok {
		return
	}
	section(w, name)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "extraction_params" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := fields[k].(type) {
		case map[string]any:
			sub := make([]string, 0, len(v))
			for sk := range v {
				sub = append(sub, sk)
			}
			sort.Strings(sub)
			fmt.Fprintf(w, "  %s:\n", k)
			for _, sk := range sub {
				fmt.Fprintf(w, "    %-14s %s\n", sk+":", formatAny(v[sk]))
			}
		default:
			fmt.Fprintf(w, "  %-16s %s\n", k+":", formatAny(v))
		}
	}
	fmt.Fprintln(w)
}

func renderSegments(w io.Writer, segments []analysis.Segment) {
	section(w, "segments")
	for i, s := range segments {
		fmt.Fprintf(w, "  %2d  %-13s %7.3f - %7.3f s  (%.3f s)\n",
			i, s.Type, s.StartS, s.EndS, s.DurationS)
	}
	fmt.Fprintln(w)
}

func renderUnits(w io.Writer, units []job.Unit) {
	section(w, "tone units")
	for _, u := range units {
		fmt.Fprintf(w, "  unit %d  %.3f - %.3f s\n", u.UnitID, u.StartS, u.EndS)
		if tf := u.ToneFeatures; tf != nil {
			t := NewMetricTable("Value")
			t.AddRow("F0 start", []string{formatPtr(tf.F0Start, 1)}, "Hz")
			t.AddRow("F0 end", []string{formatPtr(tf.F0End, 1)}, "Hz")
			t.AddRow("F0 mean", []string{formatPtr(tf.F0Mean, 1)}, "Hz")
			t.AddRow("F0 range", []string{formatPtr(tf.F0Range, 1)}, "Hz")
			t.AddRow("F0 slope", []string{formatPtr(tf.F0Slope, 1)}, "Hz/s")
			t.AddRow("Voiced ratio", []string{formatPtr(tf.VoicedRatio, 2)}, "")
			fmt.Fprint(w, indent(t.String(), "    "))
			if tf.Contour5Pt != nil {
				points := make([]string, len(tf.Contour5Pt))
				for i, v := range tf.Contour5Pt {
					points[i] = formatMetric(v, 1)
				}
				fmt.Fprintf(w, "    Contour:  [%s] Hz\n", strings.Join(points, ", "))
			}
		}
	}
	fmt.Fprintln(w)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}

// formatAny renders a summary value of whatever type the module emitted.
func formatAny(v any) string {
	switch n := v.(type) {
	case nil:
		return MissingValue
	case *float64:
		return formatPtr(n, 2)
	case float64:
		return formatMetric(n, 2)
	case float32:
		return formatMetric(float64(n), 2)
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case uint64:
		return fmt.Sprintf("%d", n)
	case string:
		return n
	default:
		return fmt.Sprintf("%v", n)
	}
}
