// Package dataset provides labelled feature vectors for center-loss
// training: synthetic Gaussian blobs, CSV files, shuffling and batching.
package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Dataset is a set of fixed-width samples with integer class labels.
type Dataset struct {
	Inputs     [][]float32 // [num_samples][dim]
	Labels     []int32     // [num_samples]
	NumClasses int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Dim returns the sample width, or 0 for an empty dataset.
func (d *Dataset) Dim() int {
	if len(d.Inputs) == 0 {
		return 0
	}
	return len(d.Inputs[0])
}

// ClassCounts returns the number of samples per label.
func (d *Dataset) ClassCounts() map[int32]int {
	return lo.CountValues(d.Labels)
}

// Subset returns the samples at indices, sharing their rows with d.
func (d *Dataset) Subset(indices []int) *Dataset {
	return &Dataset{
		Inputs:     lo.Map(indices, func(i, _ int) []float32 { return d.Inputs[i] }),
		Labels:     lo.Map(indices, func(i, _ int) int32 { return d.Labels[i] }),
		NumClasses: d.NumClasses,
	}
}

// Split shuffles the sample order with rng and returns the first
// trainFrac of it as the training set and the rest as the validation set.
func (d *Dataset) Split(trainFrac float64, rng *rand.Rand) (train, val *Dataset, err error) {
	if trainFrac <= 0 || trainFrac > 1 {
		return nil, nil, errors.Errorf("train fraction %v outside (0, 1]", trainFrac)
	}

	order := permutation(d.Len(), rng)
	cut := int(float64(d.Len()) * trainFrac)
	return d.Subset(order[:cut]), d.Subset(order[cut:]), nil
}

// Batch is one mini-batch laid out row-major.
type Batch struct {
	Inputs []float32 // [size * dim]
	Labels []int32   // [size]
	Dim    int
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Batches splits d into mini-batches of batchSize (the last may be
// smaller). A non-nil rng shuffles the sample order first.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}

	order := lo.Range(d.Len())
	if rng != nil {
		order = permutation(d.Len(), rng)
	}

	dim := d.Dim()
	return lo.Map(lo.Chunk(order, batchSize), func(idx []int, _ int) Batch {
		inputs := make([]float32, 0, len(idx)*dim)
		for _, i := range idx {
			inputs = append(inputs, d.Inputs[i]...)
		}
		return Batch{
			Inputs: inputs,
			Labels: lo.Map(idx, func(i, _ int) int32 { return d.Labels[i] }),
			Dim:    dim,
		}
	}), nil
}

func permutation(n int, rng *rand.Rand) []int {
	order := lo.Range(n)
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}
