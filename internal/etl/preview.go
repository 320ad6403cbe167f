package etl

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/BartekS5/reviewseed/pkg/models"
)

// DefaultPreviewRows is how many records a dry run prints.
const DefaultPreviewRows = 10

// Preview collects the first Limit records of a dry run and renders them as
// a table aligned by display width.
type Preview struct {
	Table models.Table
	Limit int

	mu   sync.Mutex
	rows [][]string
}

func NewPreview(table models.Table) *Preview {
	return &Preview{Table: table, Limit: DefaultPreviewRows}
}

// Add is suitable as Pipeline.Preview.
func (p *Preview) Add(batch []models.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range batch {
		if len(p.rows) >= p.Limit {
			return
		}
		vals := rec.Values()
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = previewCell(v)
		}
		p.rows = append(p.rows, row)
	}
}

func (p *Preview) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rows)
}

// WriteTo renders the header and collected rows.
func (p *Preview) WriteTo(w io.Writer) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cols := p.Table.Columns
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range p.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if cw := runewidth.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	var sb strings.Builder
	writeRow(&sb, cols, widths)
	sep := make([]string, len(cols))
	for i := range sep {
		sep[i] = strings.Repeat("-", widths[i])
	}
	writeRow(&sb, sep, widths)
	for _, row := range p.rows {
		writeRow(&sb, row, widths)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i > 0 {
			sb.WriteString("  ")
		}
		if i == len(widths)-1 {
			sb.WriteString(cell)
			continue
		}
		sb.WriteString(runewidth.FillRight(cell, width))
	}
	sb.WriteByte('\n')
}

// previewCell truncates long values so one cell cannot blow up the table.
func previewCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return runewidth.Truncate(fmt.Sprint(v), 40, "...")
}
