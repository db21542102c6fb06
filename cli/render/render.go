// Package render provides centralized output rendering for the cukemsg CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Color handling:
//   - --no-color affects table output only
//   - TUI mode is unaffected by --no-color (uses its own styling)
//
// Table output knows the decode payloads: message rows render as columns
// with colored statuses, summaries as labeled counts in sorted key order.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/cukemsg/cli/reader"
	"github.com/justapithecus/cukemsg/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// Apply default format based on TTY detection
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// RenderTUI initiates TUI mode for the given view type.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	// Validate TUI is supported for this view type
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}

	// Run the TUI
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// renderTable lays out decode payloads as aligned columns. Statuses and the
// run result are colored unless --no-color is set. Flat response structs
// (version, emit) render as one "field: value" line per field.
func (r *Renderer) renderTable(data any) error {
	switch v := data.(type) {
	case []reader.MessageRow:
		return r.writeBlock(r.messageTable(v))
	case *reader.Summary:
		return r.writeBlock(r.summaryTable(v))
	case *reader.Report:
		if err := r.writeBlock(r.summaryTable(v.Summary)); err != nil {
			return err
		}
		fmt.Fprintln(r.out)
		return r.writeBlock(r.messageTable(v.Messages))
	default:
		return r.renderFields(data)
	}
}

var messageHeaders = []string{"index", "type", "timestamp", "pickle_id", "status", "duration", "detail"}

const statusColumn = 4

func (r *Renderer) messageTable(rows []reader.MessageRow) string {
	if len(rows) == 0 {
		return "(no messages)"
	}

	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = []string{
			strconv.Itoa(row.Index),
			row.Type,
			row.Timestamp,
			row.PickleID,
			row.Status,
			row.Duration,
			row.Detail,
		}
	}

	return r.plainTable().
		Headers(messageHeaders...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			switch {
			case r.noColor:
			case row == table.HeaderRow:
				style = style.Bold(true)
			case col == statusColumn:
				style = tui.StatusStyle(rows[row].Status).PaddingRight(cellPadding)
			}
			return style
		}).
		String()
}

func (r *Renderer) summaryTable(s *reader.Summary) string {
	if s == nil {
		return "(no summary)"
	}

	result := "incomplete"
	resultStyle := tui.WarningStyle
	if s.Success != nil {
		result, resultStyle = "failed", tui.ErrorStyle
		if *s.Success {
			result, resultStyle = "succeeded", tui.SuccessStyle
		}
	}

	data := [][]string{
		{"total:", strconv.Itoa(s.Total)},
		{"implementation:", s.Implementation},
		{"result:", result},
	}
	for _, k := range sortedKeys(s.ByType) {
		data = append(data, []string{"type " + k + ":", strconv.Itoa(s.ByType[k])})
	}
	for _, k := range sortedKeys(s.ByStatus) {
		data = append(data, []string{"status " + k + ":", strconv.Itoa(s.ByStatus[k])})
	}
	if len(s.OpenCases) > 0 {
		data = append(data, []string{"open_cases:", strings.Join(s.OpenCases, ", ")})
	}

	return r.plainTable().
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if r.noColor || col != 1 {
				return cellStyle
			}
			switch label := data[row][0]; {
			case label == "result:":
				return resultStyle.PaddingRight(cellPadding)
			case strings.HasPrefix(label, "status "):
				return tui.StatusStyle(strings.TrimSuffix(strings.TrimPrefix(label, "status "), ":")).PaddingRight(cellPadding)
			}
			return cellStyle
		}).
		String()
}

const cellPadding = 2

var cellStyle = lipgloss.NewStyle().PaddingRight(cellPadding)

// plainTable is a borderless table: one line per row, columns separated by
// padding only.
func (r *Renderer) plainTable() *table.Table {
	return table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false)
}

func (r *Renderer) writeBlock(block string) error {
	_, err := fmt.Fprintln(r.out, strings.TrimRight(block, "\n"))
	return err
}

// renderFields prints one "name: value" line per exported field of a flat
// struct. Field names come from json tags.
func (r *Renderer) renderFields(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("table output is not supported for %T", data)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fmt.Fprintf(w, "%s:\t%v\n", fieldName(field), v.Field(i).Interface())
	}
	return w.Flush()
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
