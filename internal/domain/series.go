package domain

import (
	"fmt"
	"time"
)

// Bar es una observación OHLC diaria.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// OHLC agrupa cuatro series alineadas (misma longitud, mismas fechas).
// Se guarda en columnas porque los estimadores consumen slices por campo.
type OHLC struct {
	Dates []time.Time
	Open  []float64
	High  []float64
	Low   []float64
	Close []float64
}

// NewOHLC construye las columnas a partir de barras ordenadas por fecha.
// Falla si hay fechas duplicadas o desordenadas, o precios <= 0.
func NewOHLC(bars []Bar) (OHLC, error) {
	o := OHLC{
		Dates: make([]time.Time, len(bars)),
		Open:  make([]float64, len(bars)),
		High:  make([]float64, len(bars)),
		Low:   make([]float64, len(bars)),
		Close: make([]float64, len(bars)),
	}
	for i, b := range bars {
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return OHLC{}, fmt.Errorf("domain.NewOHLC: date %s not after %s",
				b.Date.Format(time.DateOnly), bars[i-1].Date.Format(time.DateOnly))
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return OHLC{}, fmt.Errorf("domain.NewOHLC: %s: %w", b.Date.Format(time.DateOnly), ErrNonPositive)
		}
		o.Dates[i] = b.Date
		o.Open[i] = b.Open
		o.High[i] = b.High
		o.Low[i] = b.Low
		o.Close[i] = b.Close
	}
	return o, nil
}

// Len devuelve el número de observaciones.
func (o OHLC) Len() int { return len(o.Dates) }

// Validate comprueba que las cuatro columnas estén alineadas con las fechas.
// Columnas vacías se permiten (series solo-close).
func (o OHLC) Validate() error {
	n := len(o.Dates)
	for _, col := range [][]float64{o.Open, o.High, o.Low, o.Close} {
		if len(col) != 0 && len(col) != n {
			return ErrMismatchedSeries
		}
	}
	return nil
}

// Slice devuelve la ventana [from, to) compartiendo memoria con la serie.
// La ventana es de solo lectura: los estimadores nunca la modifican.
func (o OHLC) Slice(from, to int) OHLC {
	cut := func(s []float64) []float64 {
		if len(s) == 0 {
			return nil
		}
		return s[from:to:to]
	}
	return OHLC{
		Dates: o.Dates[from:to:to],
		Open:  cut(o.Open),
		High:  cut(o.High),
		Low:   cut(o.Low),
		Close: cut(o.Close),
	}
}

// Point es un valor calculado asociado a una fecha.
type Point struct {
	Date  time.Time
	Value float64
}

// Series es el resultado de un cálculo rolling: fecha → valor, ordenado por fecha.
type Series struct {
	Name   string
	Points []Point
}

// Map devuelve la serie como mapa indexado por fecha (YYYY-MM-DD).
func (s Series) Map() map[string]float64 {
	m := make(map[string]float64, len(s.Points))
	for _, p := range s.Points {
		m[p.Date.Format(time.DateOnly)] = p.Value
	}
	return m
}
