// Package report renders analysis results for the terminal: aligned metric
// tables per module plus segment and unit listings.
package report

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow is one row of a comparison table. Values are pre-formatted so
// rows can mix precisions.
type MetricRow struct {
	Label  string
	Values []string
	Unit   string
}

// MetricTable formats aligned columns for metric display.
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// NewMetricTable creates a table with the given value column headers.
func NewMetricTable(headers ...string) *MetricTable {
	return &MetricTable{Headers: headers}
}

// AddRow appends a row with pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit string) {
	t.Rows = append(t.Rows, MetricRow{Label: label, Values: values, Unit: unit})
}

// String renders the table. Labels are left-aligned, values right-aligned
// within their columns, units appended after the last value.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	labelWidth := 0
	for _, row := range t.Rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}
	valueWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		valueWidths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, v := range row.Values {
			if i < len(valueWidths) && len(v) > valueWidths[i] {
				valueWidths[i] = len(v)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, h := range t.Headers {
		sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], h))
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		sb.WriteString(fmt.Sprintf("%-*s  ", labelWidth, row.Label))
		for i := 0; i < len(t.Headers); i++ {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], val))
		}
		if row.Unit != "" {
			sb.WriteString(row.Unit)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// MissingValue is the placeholder for undefined measurements.
const MissingValue = "-"

// formatMetric formats a numeric value; NaN and infinities display as the
// missing-value placeholder.
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatPtr formats an optional metric; nil displays as missing.
func formatPtr(value *float64, decimals int) string {
	if value == nil {
		return MissingValue
	}
	return formatMetric(*value, decimals)
}
