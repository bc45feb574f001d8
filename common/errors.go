package common

import "errors"

// Every error returned by the engine wraps one of these, match with errors.Is.
var (
	// ErrorInvalidBandwidth: non-positive, NaN, Inf or otherwise malformed bandwidth.
	ErrorInvalidBandwidth = errors.New("kde: invalid bandwidth")

	// ErrorInsufficientData: no samples, or too few for automatic bandwidth estimation.
	ErrorInsufficientData = errors.New("kde: insufficient data")

	// ErrorDimensionMismatch: samples, queries, bandwidth or grid disagree on dimensionality.
	ErrorDimensionMismatch = errors.New("kde: dimension mismatch")

	// ErrorInvalidGrid: malformed grid descriptor.
	ErrorInvalidGrid = errors.New("kde: invalid grid")

	// ErrorDeviceUnavailable: the parallel backend cannot execute the request.
	ErrorDeviceUnavailable = errors.New("kde: device unavailable")

	// ErrorInvalidConfig: unknown backend, kernel, strategy or bandwidth rule.
	ErrorInvalidConfig = errors.New("kde: invalid config")

	// ErrorInvalidValue: an argument outside its domain, such as a probability not in [0, 1].
	ErrorInvalidValue = errors.New("kde: invalid value")
)
