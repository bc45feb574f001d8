package kde

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/utils"
)

// Config selects the bandwidth, kernel and backend of an Engine.
type Config struct {
	// Bandwidth is "auto" (the default), a rule name, a single value or
	// one value per dimension.
	Bandwidth BandwidthSpec `json:"bandwidth"`

	// BandwidthAdjust multiplies the resolved bandwidth. 0 means 1.
	BandwidthAdjust float64 `json:"bandwidth_adjust,omitempty"`

	// Kernel must be "gaussian".
	Kernel string `json:"kernel,omitempty"`

	Backend  Backend  `json:"backend,omitempty"`
	Strategy Strategy `json:"strategy,omitempty"`

	// Parallel backend sizing. Zero values pick defaults.
	Workers           int   `json:"workers,omitempty"`
	BlockSize         int   `json:"block_size,omitempty"`
	TileSize          int   `json:"tile_size,omitempty"`
	DeviceMemoryLimit int64 `json:"device_memory_limit,omitempty"`

	// AllowFallback reruns a parallel estimation on the sequential
	// backend when the device is unavailable.
	AllowFallback bool `json:"allow_fallback,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Bandwidth: AutoBandwidth(),
		Kernel:    DefaultKernel,
		Backend:   BackendSequential,
		Strategy:  StrategyAuto,
		BlockSize: DefaultBlockSize,
		TileSize:  DefaultTileSize,
	}
}

func (c Config) Validate() error {
	if err := c.Bandwidth.Validate(); err != nil {
		return err
	}
	if !utils.IsFinite(c.BandwidthAdjust) || c.BandwidthAdjust < 0 {
		return fmt.Errorf("%w: bandwidth_adjust %v", common.ErrorInvalidBandwidth, c.BandwidthAdjust)
	}
	if _, ok := KernelByName(c.Kernel); !ok {
		return fmt.Errorf("%w: unknown kernel %q", common.ErrorInvalidConfig, c.Kernel)
	}
	if c.Backend != "" && !c.Backend.valid() {
		return fmt.Errorf("%w: unknown backend %q", common.ErrorInvalidConfig, c.Backend)
	}
	if !c.Strategy.valid() {
		return fmt.Errorf("%w: unknown strategy %q", common.ErrorInvalidConfig, c.Strategy)
	}
	if c.Workers < 0 || c.BlockSize < 0 || c.TileSize < 0 || c.DeviceMemoryLimit < 0 {
		return fmt.Errorf("%w: negative device sizing", common.ErrorInvalidConfig)
	}
	return nil
}

// LoadConfig reads a JSON config. Fields omitted from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// MarshalJSON writes a rule as its name, one value as a number and
// per-dimension values as an array.
func (s BandwidthSpec) MarshalJSON() ([]byte, error) {
	if s.IsExplicit() {
		if len(s.Values) == 1 {
			return json.Marshal(s.Values[0])
		}
		return json.Marshal(s.Values)
	}
	rule := s.Rule
	if rule == "" {
		rule = RuleAuto
	}
	return json.Marshal(string(rule))
}

func (s *BandwidthSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = AutoBandwidth()
		return nil
	case data[0] == '"':
		var rule string
		if err := json.Unmarshal(data, &rule); err != nil {
			return err
		}
		r := BandwidthRule(rule)
		if !r.valid() || r == RuleExplicit {
			return fmt.Errorf("%w: bandwidth rule %q", common.ErrorInvalidConfig, rule)
		}
		*s = BandwidthSpec{Rule: r}
		return nil
	case data[0] == '[':
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*s = ExplicitBandwidth(values...)
		return nil
	default:
		var value float64
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("%w: bandwidth %s", common.ErrorInvalidConfig, data)
		}
		*s = ExplicitBandwidth(value)
		return nil
	}
}
