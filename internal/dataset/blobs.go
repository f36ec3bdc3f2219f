package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// BlobsConfig describes a synthetic classification problem: one isotropic
// Gaussian blob per class around a random mean.
type BlobsConfig struct {
	NumClasses      int     // number of classes (default: 10)
	Dim             int     // sample width (default: 16)
	SamplesPerClass int     // samples drawn per class (default: 100)
	Separation      float64 // std-dev of the class means around the origin (default: 3)
	Spread          float64 // std-dev of samples around their class mean (default: 1)
	Seed            int64   // random seed
}

func (c *BlobsConfig) setDefaults() {
	if c.NumClasses == 0 {
		c.NumClasses = 10
	}
	if c.Dim == 0 {
		c.Dim = 16
	}
	if c.SamplesPerClass == 0 {
		c.SamplesPerClass = 100
	}
	if c.Separation == 0 {
		c.Separation = 3
	}
	if c.Spread == 0 {
		c.Spread = 1
	}
}

// Validate reports configuration errors after defaults are applied.
func (c BlobsConfig) Validate() error {
	c.setDefaults()
	switch {
	case c.NumClasses < 0:
		return errors.Errorf("num classes must be positive, got %d", c.NumClasses)
	case c.Dim < 0:
		return errors.Errorf("dim must be positive, got %d", c.Dim)
	case c.SamplesPerClass < 0:
		return errors.Errorf("samples per class must be positive, got %d", c.SamplesPerClass)
	case c.Separation < 0 || c.Spread < 0:
		return errors.Errorf("separation (%v) and spread (%v) must be non-negative", c.Separation, c.Spread)
	}
	return nil
}

// Blobs generates a Gaussian-blob dataset, ordered class by class.
// The same config always yields the same data.
func Blobs(cfg BlobsConfig) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid blobs config")
	}
	cfg.setDefaults()

	//nolint:gosec // synthetic data does not need a cryptographic source
	rng := rand.New(rand.NewSource(cfg.Seed))

	means := lo.Times(cfg.NumClasses, func(int) []float32 {
		return gaussian(rng, cfg.Dim, nil, cfg.Separation)
	})

	n := cfg.NumClasses * cfg.SamplesPerClass
	ds := &Dataset{
		Inputs:     make([][]float32, 0, n),
		Labels:     make([]int32, 0, n),
		NumClasses: cfg.NumClasses,
	}
	for class, mean := range means {
		for range cfg.SamplesPerClass {
			ds.Inputs = append(ds.Inputs, gaussian(rng, cfg.Dim, mean, cfg.Spread))
			ds.Labels = append(ds.Labels, int32(class))
		}
	}
	return ds, nil
}

// gaussian draws dim values from N(mean, std²); a nil mean is the origin.
func gaussian(rng *rand.Rand, dim int, mean []float32, std float64) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(rng.NormFloat64() * std)
		if mean != nil {
			out[i] += mean[i]
		}
	}
	return out
}
