// Package train runs joint softmax and center-loss training of a small
// embedding network.
//
// Each step minimizes
//
//	L = CrossEntropy(head(embed(x)), y) + λ · CenterLoss(y, embed(x))
//
// The network weights are updated by Adam; the class centers by plain SGD
// with their own learning rate α.
package train

import (
	"github.com/pkg/errors"

	"github.com/aivclab/neodroidvision/internal/nn"
)

// Config holds the training configuration.
type Config struct {
	Classes     int            // number of classes (default: 10)
	InputDim    int            // input width (default: 16, or the width of Data)
	Hidden      int            // hidden layer width (default: 64)
	FeatDim     int            // embedding width (default: 2)
	Epochs      int            // passes over the training set (default: 10)
	BatchSize   int            // samples per step (default: 64)
	LR          float32        // Adam learning rate for the network (default: 0.001)
	Alpha       float32        // SGD learning rate for the centers (default: 0.5)
	Lambda      float32        // weight of the center loss (default: 0.01)
	Seed        int64          // random seed for data, init and shuffling
	SizeAverage bool           // average the center loss over the batch
	Counts      nn.CountPolicy // per-class divisor of the centers gradient

	// Data source: a CSV file (label,x0,...) or, when empty, Gaussian blobs.
	Data            string
	SamplesPerClass int     // blobs per class (default: 200)
	ValFraction     float64 // held-out fraction (default: 0.2)

	Checkpoint string // SafeTensors checkpoint written after every epoch (optional)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	cfg := Config{SizeAverage: true}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Classes == 0 {
		c.Classes = 10
	}
	if c.InputDim == 0 {
		c.InputDim = 16
	}
	if c.Hidden == 0 {
		c.Hidden = 64
	}
	if c.FeatDim == 0 {
		c.FeatDim = 2
	}
	if c.Epochs == 0 {
		c.Epochs = 10
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
	if c.LR == 0 {
		c.LR = 0.001
	}
	if c.Alpha == 0 {
		c.Alpha = 0.5
	}
	if c.Lambda == 0 {
		c.Lambda = 0.01
	}
	if c.SamplesPerClass == 0 {
		c.SamplesPerClass = 200
	}
	if c.ValFraction == 0 {
		c.ValFraction = 0.2
	}
}

// Validate reports configuration errors after defaults are applied.
func (c Config) Validate() error {
	c.setDefaults()
	switch {
	case c.Classes < 2:
		return errors.Errorf("classes must be at least 2, got %d", c.Classes)
	case c.InputDim < 0 || c.Hidden < 0 || c.FeatDim < 0:
		return errors.Errorf("layer widths must be positive, got input=%d hidden=%d feat=%d", c.InputDim, c.Hidden, c.FeatDim)
	case c.Epochs < 0 || c.BatchSize < 0 || c.SamplesPerClass < 0:
		return errors.Errorf("epochs (%d), batch size (%d) and samples per class (%d) must be positive",
			c.Epochs, c.BatchSize, c.SamplesPerClass)
	case c.LR < 0 || c.Alpha < 0 || c.Lambda < 0:
		return errors.Errorf("lr (%v), alpha (%v) and lambda (%v) must be non-negative", c.LR, c.Alpha, c.Lambda)
	case c.ValFraction < 0 || c.ValFraction >= 1:
		return errors.Errorf("validation fraction %v outside [0, 1)", c.ValFraction)
	}
	return nil
}
