package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatAuto  = "auto"
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

const maxCellWidth = 48

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).MaxWidth(maxCellWidth + 2)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// tabular is implemented by values that have a table rendering.
type tabular interface {
	headers() []string
	rows() [][]string
}

// resolveFormat picks the table format for terminals and JSON otherwise.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return format, nil
	case "", FormatAuto:
		if isTerminal(w) {
			return FormatTable, nil
		}
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, table, json or yaml)", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// render writes v in the requested format. Values without a table form fall
// back to YAML in table mode.
func render(w io.Writer, format string, v any) error {
	format, err := resolveFormat(format, w)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatTable:
		if t, ok := v.(tabular); ok {
			return renderTable(w, t)
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func renderTable(w io.Writer, t tabular) error {
	rows := t.rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("(none)"))
		return err
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(t.headers()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}
