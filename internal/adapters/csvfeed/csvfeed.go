// Package csvfeed carga las series de entrada desde ficheros CSV con cabecera:
//
//	OHLC:     date,open,high,low,close   (open/high/low opcionales)
//	opciones: date,expire,strike,call,put (call/put vacíos = sin cotización)
//	tasas:    date,rate
//	spot:     date,close
//
// Las columnas se localizan por nombre, sin importar mayúsculas ni orden.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/volbot/internal/domain"
)

var dateLayouts = []string{time.DateOnly, "2006/01/02", time.DateTime, "20060102"}

// Feed implementa ports.PriceProvider, ports.ChainProvider y ports.RateProvider.
type Feed struct {
	OHLCPath    string
	OptionsPath string
	RatesPath   string
	SpotPath    string // si está vacío, el spot de cada cadena es el cierre de OHLCPath
	DefaultRate float64
}

// FetchOHLC lee la serie OHLC. Si el fichero solo trae cierres, las demás
// columnas quedan vacías y solo el estimador realized puede usarla.
func (f *Feed) FetchOHLC(_ context.Context) (domain.OHLC, error) {
	t, err := readTable(f.OHLCPath)
	if err != nil {
		return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: %w", err)
	}
	if err := t.require("date", "close"); err != nil {
		return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: %s: %w", f.OHLCPath, err)
	}
	full := t.has("open") && t.has("high") && t.has("low")

	var o domain.OHLC
	var prev time.Time
	for i, row := range t.rows {
		date, err := t.date(row, "date")
		if err != nil {
			return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: line %d: %w", i+2, err)
		}
		if i > 0 && !date.After(prev) {
			return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: line %d: date %s not after %s",
				i+2, date.Format(time.DateOnly), prev.Format(time.DateOnly))
		}
		prev = date

		cols := []string{"close"}
		if full {
			cols = []string{"open", "high", "low", "close"}
		}
		vals := make([]float64, len(cols))
		for j, col := range cols {
			if vals[j], err = t.float(row, col); err != nil {
				return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: line %d: %w", i+2, err)
			}
			if !(vals[j] > 0) {
				return domain.OHLC{}, fmt.Errorf("csvfeed.FetchOHLC: line %d: %s=%g: %w", i+2, col, vals[j], domain.ErrNonPositive)
			}
		}

		o.Dates = append(o.Dates, date)
		if full {
			o.Open = append(o.Open, vals[0])
			o.High = append(o.High, vals[1])
			o.Low = append(o.Low, vals[2])
			o.Close = append(o.Close, vals[3])
		} else {
			o.Close = append(o.Close, vals[0])
		}
	}
	return o, nil
}

// FetchRates lee la curva de tasas.
func (f *Feed) FetchRates(_ context.Context) (*domain.RateCurve, error) {
	curve := domain.NewRateCurve(f.DefaultRate)
	if f.RatesPath == "" {
		return curve, nil
	}
	t, err := readTable(f.RatesPath)
	if err != nil {
		return nil, fmt.Errorf("csvfeed.FetchRates: %w", err)
	}
	if err := t.require("date", "rate"); err != nil {
		return nil, fmt.Errorf("csvfeed.FetchRates: %s: %w", f.RatesPath, err)
	}
	for i, row := range t.rows {
		date, err := t.date(row, "date")
		if err != nil {
			return nil, fmt.Errorf("csvfeed.FetchRates: line %d: %w", i+2, err)
		}
		rate, err := t.float(row, "rate")
		if err != nil {
			return nil, fmt.Errorf("csvfeed.FetchRates: line %d: %w", i+2, err)
		}
		curve.Set(date, rate)
	}
	return curve, nil
}

// FetchChains agrupa las cotizaciones por fecha de negociación y asigna a cada
// snapshot el cierre del subyacente. Las fechas sin spot se descartan.
func (f *Feed) FetchChains(ctx context.Context) ([]domain.OptionChain, error) {
	t, err := readTable(f.OptionsPath)
	if err != nil {
		return nil, fmt.Errorf("csvfeed.FetchChains: %w", err)
	}
	if err := t.require("date", "expire", "strike", "call", "put"); err != nil {
		return nil, fmt.Errorf("csvfeed.FetchChains: %s: %w", f.OptionsPath, err)
	}
	spots, err := f.spots(ctx)
	if err != nil {
		return nil, fmt.Errorf("csvfeed.FetchChains: %w", err)
	}

	byDate := make(map[string]*domain.OptionChain)
	for i, row := range t.rows {
		var q domain.OptionQuote
		if q.Date, err = t.date(row, "date"); err != nil {
			return nil, fmt.Errorf("csvfeed.FetchChains: line %d: %w", i+2, err)
		}
		if q.Expiry, err = t.date(row, "expire"); err != nil {
			return nil, fmt.Errorf("csvfeed.FetchChains: line %d: %w", i+2, err)
		}
		if q.Strike, err = t.float(row, "strike"); err != nil {
			return nil, fmt.Errorf("csvfeed.FetchChains: line %d: %w", i+2, err)
		}
		if q.Call, err = t.optFloat(row, "call"); err != nil {
			return nil, fmt.Errorf("csvfeed.FetchChains: line %d: %w", i+2, err)
		}
		if q.Put, err = t.optFloat(row, "put"); err != nil {
			return nil, fmt.Errorf("csvfeed.FetchChains: line %d: %w", i+2, err)
		}

		key := q.Date.Format(time.DateOnly)
		spot, ok := spots[key]
		if !ok {
			continue
		}
		c, ok := byDate[key]
		if !ok {
			c = &domain.OptionChain{Date: q.Date, Spot: spot}
			byDate[key] = c
		}
		c.Quotes = append(c.Quotes, q)
	}

	chains := make([]domain.OptionChain, 0, len(byDate))
	for _, c := range byDate {
		chains = append(chains, *c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Date.Before(chains[j].Date) })
	return chains, nil
}

func (f *Feed) spots(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64)
	if f.SpotPath == "" {
		o, err := f.FetchOHLC(ctx)
		if err != nil {
			return nil, err
		}
		for i, d := range o.Dates {
			out[d.Format(time.DateOnly)] = o.Close[i]
		}
		return out, nil
	}

	t, err := readTable(f.SpotPath)
	if err != nil {
		return nil, err
	}
	if err := t.require("date", "close"); err != nil {
		return nil, fmt.Errorf("%s: %w", f.SpotPath, err)
	}
	for i, row := range t.rows {
		date, err := t.date(row, "date")
		if err != nil {
			return nil, fmt.Errorf("spot line %d: %w", i+2, err)
		}
		v, err := t.float(row, "close")
		if err != nil {
			return nil, fmt.Errorf("spot line %d: %w", i+2, err)
		}
		out[date.Format(time.DateOnly)] = v
	}
	return out, nil
}

// --- helpers internos ---

type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(path string) (*table, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()
	return parseTable(file)
}

func parseTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns %s", strings.Join(missing, ","))
	}
	return nil
}

func (t *table) cell(row []string, col string) string {
	i := t.cols[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) date(row []string, col string) (time.Time, error) {
	raw := t.cell(row, col)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unparseable date %q", col, raw)
}

func (t *table) float(row []string, col string) (float64, error) {
	raw := t.cell(row, col)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q: %w", col, raw, err)
	}
	return v, nil
}

// optFloat devuelve NaN para celdas vacías o "nan".
func (t *table) optFloat(row []string, col string) (float64, error) {
	raw := t.cell(row, col)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return math.NaN(), nil
	}
	return t.float(row, col)
}
