package train

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/aivclab/neodroidvision/internal/dataset"
)

// LoadData loads the configured dataset and splits it into training and
// validation sets. cfg.InputDim and cfg.Classes are taken from a CSV file
// when they are unset; otherwise they must fit it.
func LoadData(cfg *Config) (train, val *dataset.Dataset, err error) {
	var ds *dataset.Dataset
	if cfg.Data != "" {
		if ds, err = dataset.LoadCSV(cfg.Data); err != nil {
			return nil, nil, err
		}
		if cfg.InputDim == 0 {
			cfg.InputDim = ds.Dim()
		}
		if cfg.Classes == 0 {
			cfg.Classes = ds.NumClasses
		}
	}
	cfg.setDefaults()

	if ds == nil {
		ds, err = dataset.Blobs(dataset.BlobsConfig{
			NumClasses:      cfg.Classes,
			Dim:             cfg.InputDim,
			SamplesPerClass: cfg.SamplesPerClass,
			Seed:            cfg.Seed,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	if ds.Dim() != cfg.InputDim {
		return nil, nil, errors.Errorf("data has %d features, model expects %d", ds.Dim(), cfg.InputDim)
	}
	if ds.NumClasses > cfg.Classes {
		return nil, nil, errors.Errorf("data has %d classes, model has %d", ds.NumClasses, cfg.Classes)
	}

	//nolint:gosec // shuffling does not need a cryptographic source
	return ds.Split(1-cfg.ValFraction, rand.New(rand.NewSource(cfg.Seed)))
}
