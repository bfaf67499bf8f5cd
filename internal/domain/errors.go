package domain

import "errors"

// Errores de dominio. Los callers los distinguen con errors.Is; nunca se
// devuelve un 0 o NaN en lugar de un error.
var (
	// ErrInvalidModel: nombre de estimador desconocido.
	ErrInvalidModel = errors.New("invalid volatility model")

	// ErrWindowTooShort: la ventana no tiene observaciones suficientes para el lag del modelo.
	ErrWindowTooShort = errors.New("window too short")

	// ErrNonPositive: precio, strike, volatilidad o plazo <= 0.
	ErrNonPositive = errors.New("non-positive input")

	// ErrDegenerate: denominador nulo, varianza negativa o resultado no finito.
	ErrDegenerate = errors.New("degenerate computation")

	// ErrMismatchedSeries: series OHLC de distinta longitud.
	ErrMismatchedSeries = errors.New("mismatched series lengths")

	// ErrNoRootInBracket: f(lo) y f(hi) tienen el mismo signo.
	ErrNoRootInBracket = errors.New("no root in bracket")

	// ErrDiverged: la iteración produjo un valor no finito.
	ErrDiverged = errors.New("root finding diverged")

	// ErrMaxIterations: el método acotado agotó su presupuesto de iteraciones.
	ErrMaxIterations = errors.New("root finding exceeded max iterations")

	// ErrMissingTerm: el snapshot no tiene vencimientos near/next elegibles.
	ErrMissingTerm = errors.New("missing near or next term")

	// ErrInsufficientStrikes: hacen falta al menos dos strikes por vencimiento.
	ErrInsufficientStrikes = errors.New("insufficient strikes")

	// ErrNoLegs: ninguna pata del método Whaley produjo volatilidad.
	ErrNoLegs = errors.New("no implied volatility legs available")
)

// ErrRunNotFound: el identificador de ejecución no existe en el almacenamiento.
var ErrRunNotFound = errors.New("run not found")
