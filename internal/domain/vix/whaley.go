package vix

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
)

// whaleyInitialSigma es el punto de partida de Newton para las patas del índice.
const whaleyInitialSigma = 0.3

// Moneyness identifica el conjunto de la pata por la posición del strike
// respecto al spot (desde el punto de vista de la call).
type Moneyness int

const (
	OTM Moneyness = iota // strike > spot
	ITM                  // strike < spot
)

func (m Moneyness) String() string {
	if m == ITM {
		return "itm"
	}
	return "otm"
}

// Leg es el strike más cercano al spot de un conjunto y un vencimiento, con
// las volatilidades implícitas de su call y su put (NaN si no se pudieron calibrar).
type Leg struct {
	Set      Moneyness
	Days     int
	Strike   float64
	Distance float64
	CallVol  float64
	PutVol   float64
}

// Vol promedia las volatilidades disponibles de la pata.
func (l Leg) Vol() (float64, bool) {
	var sum float64
	var n int
	for _, v := range []float64{l.CallVol, l.PutVol} {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), false
	}
	return sum / float64(n), true
}

// WhaleyResult es el índice y el detalle de cada pata.
type WhaleyResult struct {
	Index    float64
	NearVol  float64
	NextVol  float64
	Fallback bool // true si el índice es la media simple de las volatilidades disponibles
	Legs     []Leg
}

// Whaley calcula el índice por interpolación:
//
//  1. por vencimiento (cercano y siguiente) se toma el strike más próximo por
//     encima del spot (otm) y por debajo (itm);
//  2. calls y puts otm se calibran por Newton; las puts itm por el método
//     acotado, que es más estable cuando la prima es pequeña;
//  3. cada vencimiento pondera otm e itm por la distancia del otro conjunto:
//     v = v_otm·d_itm/(d_otm+d_itm) + v_itm·d_otm/(d_otm+d_itm);
//  4. los dos vencimientos se interpolan linealmente a TargetDays.
//
// El resultado es una volatilidad en tanto por uno. Si falta alguna pata se
// usa la media simple de las (hasta 8) volatilidades calibradas; sin ninguna
// devuelve ErrNoLegs.
func Whaley(chain domain.OptionChain, r float64, cfg Config) (WhaleyResult, error) {
	cfg = cfg.withDefaults()
	if !(chain.Spot > 0) {
		return WhaleyResult{}, fmt.Errorf("vix.Whaley: spot %g: %w", chain.Spot, domain.ErrNonPositive)
	}
	nearTerm, nextTerm, err := chain.SelectTerms(cfg.MinNearDays)
	if err != nil {
		return WhaleyResult{}, fmt.Errorf("vix.Whaley: %w", err)
	}

	var res WhaleyResult
	var termVols [2]float64
	complete := true
	for i, term := range []domain.Term{nearTerm, nextTerm} {
		legs := termLegs(term, chain.Spot, r, cfg)
		res.Legs = append(res.Legs, legs...)
		v, ok := termVol(legs)
		termVols[i] = v
		complete = complete && ok
	}
	res.NearVol, res.NextVol = termVols[0], termVols[1]

	if complete {
		n1, n2 := float64(nearTerm.Days), float64(nextTerm.Days)
		res.Index = termVols[0]*(n2-cfg.TargetDays)/(n2-n1) + termVols[1]*(cfg.TargetDays-n1)/(n2-n1)
		if !math.IsNaN(res.Index) && !math.IsInf(res.Index, 0) {
			return res, nil
		}
	}

	var sum float64
	var n int
	for _, l := range res.Legs {
		for _, v := range []float64{l.CallVol, l.PutVol} {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return res, fmt.Errorf("vix.Whaley: %s: %w", chain.Date.Format(time.DateOnly), domain.ErrNoLegs)
	}
	res.Index = sum / float64(n)
	res.Fallback = true
	return res, nil
}

// termLegs localiza los strikes más cercanos al spot a cada lado y calibra sus
// volatilidades. Un conjunto sin strikes no produce pata.
func termLegs(term domain.Term, spot, r float64, cfg Config) []Leg {
	otm, itm := -1, -1
	for i, q := range term.Quotes {
		switch {
		case q.Strike > spot && (otm < 0 || q.Strike < term.Quotes[otm].Strike):
			otm = i
		case q.Strike < spot && (itm < 0 || q.Strike > term.Quotes[itm].Strike):
			itm = i
		}
	}

	t := float64(term.Days) / cfg.YearDays
	var legs []Leg
	for _, pick := range []struct {
		set Moneyness
		idx int
	}{{OTM, otm}, {ITM, itm}} {
		if pick.idx < 0 {
			continue
		}
		q := term.Quotes[pick.idx]
		leg := Leg{
			Set:      pick.set,
			Days:     term.Days,
			Strike:   q.Strike,
			Distance: math.Abs(q.Strike - spot),
			CallVol:  math.NaN(),
			PutVol:   math.NaN(),
		}
		if q.HasCall() {
			leg.CallVol = newtonVol(pricing.Option{Kind: pricing.Call, Spot: spot, Strike: q.Strike, Rate: r, T: t}, q.Call)
		}
		if q.HasPut() {
			o := pricing.Option{Kind: pricing.Put, Spot: spot, Strike: q.Strike, Rate: r, T: t}
			if pick.set == ITM {
				leg.PutVol = bracketedVol(o, q.Put)
			} else {
				leg.PutVol = newtonVol(o, q.Put)
			}
		}
		legs = append(legs, leg)
	}
	return legs
}

// termVol pondera las patas otm e itm por la distancia del conjunto contrario.
func termVol(legs []Leg) (float64, bool) {
	var otm, itm *Leg
	for i := range legs {
		if legs[i].Set == OTM {
			otm = &legs[i]
		} else {
			itm = &legs[i]
		}
	}
	if otm == nil || itm == nil {
		return math.NaN(), false
	}
	vo, okO := otm.Vol()
	vi, okI := itm.Vol()
	total := otm.Distance + itm.Distance
	if !okO || !okI || total <= 0 {
		return math.NaN(), false
	}
	return vo*itm.Distance/total + vi*otm.Distance/total, true
}

// newtonVol devuelve NaN si Newton diverge o termina en una sigma no positiva.
func newtonVol(o pricing.Option, price float64) float64 {
	res, err := pricing.ImpliedVolNewton(o, price, pricing.NewtonOptions{InitialSigma: whaleyInitialSigma})
	if err != nil || !(res.Sigma > 0) {
		return math.NaN()
	}
	return res.Sigma
}

func bracketedVol(o pricing.Option, price float64) float64 {
	sigma, err := pricing.ImpliedVolBracketed(o, price, pricing.BracketOptions{})
	if err != nil {
		return math.NaN()
	}
	return sigma
}
