package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reticle/internal/workflow"
)

// tone classifies a status row; it picks the bracketed label and colour.
type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneError
)

func (t tone) String() string {
	return [...]string{"INFO", "OK", "WARN", "ERROR"}[t]
}

func (t tone) colors() text.Colors {
	switch t {
	case toneOK:
		return text.Colors{text.FgGreen}
	case toneWarn:
		return text.Colors{text.FgYellow}
	case toneError:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgBlue}
	}
}

// stateTone shows settled workflow states as OK and an idle daemon as WARN.
func stateTone(state workflow.State) tone {
	switch state {
	case workflow.Confirmed, workflow.Searched:
		return toneOK
	case workflow.NotStarted:
		return toneWarn
	default:
		return toneInfo
	}
}

const labelWidth = 20

// statusLine formats one "  Label:   [TONE] message" row.
func statusLine(label string, t tone, message string, color bool) string {
	badge := "[" + t.String() + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", labelWidth, label+":", badge)
	if color {
		return t.colors().Sprint(line)
	}
	return line
}

// printer writes sectioned status output for the human-readable commands.
type printer struct {
	out   io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{out: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) section(title string) {
	head := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(head))
	if p.color {
		head, rule = text.FgBlue.Sprint(head), text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(p.out, head)
	fmt.Fprintln(p.out, rule)
}

func (p *printer) row(label string, t tone, message string) {
	fmt.Fprintln(p.out, statusLine(label, t, message, p.color))
}

func (p *printer) rowf(label string, t tone, format string, args ...any) {
	p.row(label, t, fmt.Sprintf(format, args...))
}

func (p *printer) blank() {
	fmt.Fprintln(p.out)
}

func (p *printer) table(headers []string, rows [][]string, aligns ...text.Align) {
	fmt.Fprintln(p.out, renderTable(headers, rows, aligns...))
}

// renderTable draws a rounded table. Columns without an entry in aligns are
// left aligned; short rows are padded with empty cells.
func renderTable(headers []string, rows [][]string, aligns ...text.Align) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, r := range rows {
		tw.AppendRow(toRow(r, len(headers)))
	}
	configs := make([]table.ColumnConfig, len(headers))
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) {
			configs[i].Align = aligns[i]
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

// writeJSON prints v as indented JSON for the --json flags.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
