package kde

const (
	DefaultKernel = "gaussian"

	// threads per block, matches a warp multiple on real hardware
	DefaultBlockSize = 64
	// samples staged into shared memory per tile
	DefaultTileSize = 256

	// grid extends this many bandwidths past the extreme samples
	DefaultCut = 3.0

	DefaultMinGridSize = 100

	// quadrature nodes per grid interval when integrating the cdf
	CdfQuadratureNodes = 50

	// IQR of a standard normal
	iqrNormalize = 1.349
)
