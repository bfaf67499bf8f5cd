package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/volbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	tail  int // últimas fechas a listar en modo tabla
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool, tail int) *Console {
	return &Console{out: os.Stdout, table: table, tail: tail}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool, tail int) *Console {
	return &Console{out: w, table: table, tail: tail}
}

// Notify imprime la ejecución en el modo configurado.
func (c *Console) Notify(_ context.Context, run domain.Run) error {
	now := time.Now().Format("15:04:05")
	if len(run.Series) == 0 && len(run.Grid) == 0 {
		fmt.Fprintf(c.out, "[%s] %s %s: no results\n", now, run.Kind, shortID(run.ID))
		return nil
	}

	if len(run.Grid) > 0 {
		c.printGrid(run)
	}
	if len(run.Series) > 0 {
		if c.table {
			c.printFull(run)
		} else {
			c.printCompact(run)
		}
	}
	c.printCounters(run)
	return nil
}

// printCompact imprime una línea por serie.
func (c *Console) printCompact(run domain.Run) {
	now := time.Now().Format("15:04:05")
	for _, s := range run.Series {
		sum := domain.Summarize(s)
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] %s %-16s n=%d", now, run.Kind, s.Name, sum.Count)
		if sum.Count > 0 {
			fmt.Fprintf(&sb, " mean=%s std=%s last=%s",
				num(sum.Mean), num(sum.Std), num(s.Points[len(s.Points)-1].Value))
		}
		fmt.Fprintln(c.out, sb.String())
	}
}

// printFull imprime el resumen estadístico y las últimas fechas.
func (c *Console) printFull(run domain.Run) {
	fmt.Fprintf(c.out, "\n[%s] %s %s %s\n", time.Now().Format("15:04:05"), run.Kind, run.Label, shortID(run.ID))
	c.printSummaryTable(run.Series)
	if c.tail > 0 {
		c.printTail(run.Series)
	}
}

func (c *Console) printSummaryTable(series []domain.Series) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Series", "Points", "From", "To", "Mean", "Std", "Min", "Max")
	for _, s := range series {
		sum := domain.Summarize(s)
		if sum.Count == 0 {
			table.Append(s.Name, "0", "-", "-", "-", "-", "-", "-")
			continue
		}
		table.Append(
			s.Name,
			fmt.Sprintf("%d", sum.Count),
			sum.First.Format(time.DateOnly),
			sum.Last.Format(time.DateOnly),
			num(sum.Mean),
			num(sum.Std),
			num(sum.Min),
			num(sum.Max),
		)
	}
	table.Render()
}

// printTail alinea las series por fecha y lista las últimas c.tail fechas.
func (c *Console) printTail(series []domain.Series) {
	byDate := make(map[string][]string)
	for i, s := range series {
		for key, v := range s.Map() {
			row, ok := byDate[key]
			if !ok {
				row = make([]string, len(series))
				for j := range row {
					row[j] = "-"
				}
				byDate[key] = row
			}
			row[i] = num(v)
		}
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > c.tail {
		dates = dates[len(dates)-c.tail:]
	}

	header := []any{"Date"}
	for _, s := range series {
		header = append(header, s.Name)
	}
	table := tablewriter.NewWriter(c.out)
	table.Header(header...)
	for _, d := range dates {
		row := []any{d}
		for _, v := range byDate[d] {
			row = append(row, v)
		}
		table.Append(row...)
	}
	table.Render()
}

// printGrid imprime la tabla phoenix: una fila por plazo, una columna por sigma.
func (c *Console) printGrid(run domain.Run) {
	var months []int
	var sigmas []float64
	cells := make(map[int]map[float64]domain.GridCell)
	for _, cell := range run.Grid {
		if _, ok := cells[cell.Months]; !ok {
			cells[cell.Months] = make(map[float64]domain.GridCell)
			months = append(months, cell.Months)
		}
		if !containsFloat(sigmas, cell.Sigma) {
			sigmas = append(sigmas, cell.Sigma)
		}
		cells[cell.Months][cell.Sigma] = cell
	}
	sort.Ints(months)
	sort.Float64s(sigmas)

	fmt.Fprintf(c.out, "\n[%s] phoenix %s: value (delta)\n", time.Now().Format("15:04:05"), shortID(run.ID))
	header := []any{"Tenor"}
	for _, s := range sigmas {
		header = append(header, "σ="+decimal.NewFromFloat(s).StringFixed(2))
	}
	table := tablewriter.NewWriter(c.out)
	table.Header(header...)
	for _, m := range months {
		row := []any{fmt.Sprintf("%dm", m)}
		for _, s := range sigmas {
			cell, ok := cells[m][s]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%s (%s)", num(cell.Value), num(cell.Delta)))
		}
		table.Append(row...)
	}
	table.Render()
}

// PrintRuns lista ejecuciones guardadas, una fila por ejecución.
func (c *Console) PrintRuns(runs []domain.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "no saved runs")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Kind", "Label", "Created", "Skipped", "Fallbacks")
	for _, r := range runs {
		table.Append(
			r.ID,
			string(r.Kind),
			r.Label,
			r.CreatedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d", r.Failures),
			fmt.Sprintf("%d", r.Fallbacks),
		)
	}
	table.Render()
}

func (c *Console) printCounters(run domain.Run) {
	if run.Failures == 0 && run.Fallbacks == 0 {
		return
	}
	fmt.Fprintf(c.out, "  skipped=%d rate_fallbacks=%d\n", run.Failures, run.Fallbacks)
}

// --- helpers internos ---

// num formatea con 4 decimales fijos, sin el ruido binario de %g.
// decimal no admite NaN ni ±Inf.
func num(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return decimal.NewFromFloat(v).StringFixed(4)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func containsFloat(xs []float64, v float64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
