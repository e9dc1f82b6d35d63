package forecast

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/crashradar/crashradar/pkg/bubble"
	"github.com/crashradar/crashradar/pkg/fractal"
	"github.com/crashradar/crashradar/pkg/lppl"
	"github.com/crashradar/crashradar/pkg/regime"
	"github.com/crashradar/crashradar/pkg/sde"
	"github.com/crashradar/crashradar/pkg/volatility"
)

// Config assembles the knobs of every analysis stage. The zero value is not
// usable; start from DefaultConfig or LoadConfig.
type Config struct {
	// Horizon is the price-forecast fan length in days.
	Horizon int `yaml:"horizon"`
	// Confidence drives the tail-risk quantiles.
	Confidence float64 `yaml:"confidence"`
	// CrashThreshold is the drawdown fraction counted as a crash.
	CrashThreshold float64 `yaml:"crashThreshold"`

	HurstMethod fractal.HurstMethod `yaml:"hurstMethod"`

	Regime     regime.Config        `yaml:"regime"`
	Volatility volatility.FitConfig `yaml:"volatility"`
	CrashTime  lppl.Config          `yaml:"crashTime"`
	Simulation sde.Config           `yaml:"simulation"`

	Bubble     bubble.SeriesConfig `yaml:"bubble"`
	Hysteresis bubble.Hysteresis   `yaml:"hysteresis"`
}

func DefaultConfig() Config {
	sim := sde.DefaultConfig()
	sim.Paths = 1000
	sim.Steps = 30
	sim.Dt = 1 // daily steps on the sample index scale

	return Config{
		Horizon:        30,
		Confidence:     0.95,
		CrashThreshold: 0.20,
		HurstMethod:    fractal.HurstDFA,
		Regime:         regime.DefaultConfig(),
		Volatility:     volatility.DefaultFitConfig(),
		CrashTime:      lppl.DefaultConfig(),
		Simulation:     sim,
		Bubble:         bubble.DefaultSeriesConfig(),
	}
}

// LoadConfig reads a YAML file over the defaults, so a partial file only
// overrides what it names.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	if cfg.Horizon < 1 {
		return cfg, errors.New("config: horizon must be positive")
	}
	cfg.Simulation.Steps = cfg.Horizon
	return cfg, nil
}
