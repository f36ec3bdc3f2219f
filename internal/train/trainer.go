package train

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strconv"

	"github.com/ajroetker/go-highway/hwy/contrib/vec"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/aivclab/neodroidvision/internal/autodiff"
	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/dataset"
	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/optim"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Backend is the autodiff CPU backend every trainer runs on.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Trainer owns the model, the losses and the optimizers of one run.
type Trainer struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger
	rng     *rand.Rand

	embed      *nn.Sequential[Backend]
	head       *nn.Linear[Backend]
	crossEnt   *nn.CrossEntropyLoss[Backend]
	centerLoss *nn.CenterLoss[Backend]

	modelOpt  *optim.Adam[Backend]
	centerOpt *optim.SGD[Backend]

	epoch int
	step  int64
}

// StepResult holds the losses of one training step.
type StepResult struct {
	Loss         float32 // cross entropy + λ · center loss
	CrossEntropy float32
	CenterLoss   float32
	Accuracy     float32 // softmax accuracy on the batch
}

// EpochMetrics summarizes one epoch.
type EpochMetrics struct {
	Epoch        int
	Loss         float32 // mean over steps
	CrossEntropy float32
	CenterLoss   float32
	Accuracy     float32
	Validation   Evaluation
}

// Evaluation holds held-out metrics.
type Evaluation struct {
	Accuracy       float32 // softmax head accuracy
	CenterAccuracy float32 // nearest-center accuracy in feature space
	MeanDistance   float32 // mean ||f(x) - c_y||²
}

// New builds a trainer for cfg. A nil logger discards logs.
func New(cfg Config, logger *slog.Logger) (*Trainer, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	//nolint:gosec // initialization and shuffling do not need a cryptographic source
	rng := rand.New(rand.NewSource(cfg.Seed))
	backend := autodiff.New(cpu.New())

	embed := nn.NewSequential[Backend](
		nn.NewLinearFrom(rng, cfg.InputDim, cfg.Hidden, backend),
		nn.NewReLU[Backend](),
		nn.NewLinearFrom(rng, cfg.Hidden, cfg.FeatDim, backend),
	)
	head := nn.NewLinearFrom(rng, cfg.FeatDim, cfg.Classes, backend)
	centerLoss := nn.NewCenterLossWithConfig(nn.CenterLossConfig{
		NumClasses:  cfg.Classes,
		FeatDim:     cfg.FeatDim,
		SizeAverage: cfg.SizeAverage,
		Counts:      cfg.Counts,
		Rand:        rng,
	}, backend)

	modelParams := append(embed.Parameters(), head.Parameters()...)

	return &Trainer{
		cfg:        cfg,
		backend:    backend,
		logger:     logger,
		rng:        rng,
		embed:      embed,
		head:       head,
		crossEnt:   nn.NewCrossEntropyLoss(backend),
		centerLoss: centerLoss,
		modelOpt:   optim.NewAdam(modelParams, optim.AdamConfig{LR: cfg.LR}, backend),
		centerOpt:  optim.NewSGD(centerLoss.Parameters(), optim.SGDConfig{LR: cfg.Alpha}, backend),
	}, nil
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config {
	return t.cfg
}

// CenterLoss returns the center-loss module.
func (t *Trainer) CenterLoss() *nn.CenterLoss[Backend] {
	return t.centerLoss
}

// Steps returns the number of optimization steps taken.
func (t *Trainer) Steps() int64 {
	return t.step
}

// Features embeds inputs ([n, input_dim], row-major) without recording.
func (t *Trainer) Features(inputs []float32, n int) (*tensor.Tensor[float32, Backend], error) {
	x, err := tensor.FromSlice(inputs, tensor.Shape{n, t.cfg.InputDim}, t.backend)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build input tensor")
	}

	var features *tensor.Tensor[float32, Backend]
	t.backend.NoGrad(func() {
		features = t.embed.Forward(x)
	})
	return features, nil
}

// Step runs one forward/backward pass on batch and updates the network and
// the centers.
func (t *Trainer) Step(batch dataset.Batch) (StepResult, error) {
	n := batch.Size()
	x, err := tensor.FromSlice(batch.Inputs, tensor.Shape{n, batch.Dim}, t.backend)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "failed to build input tensor")
	}
	y, err := tensor.FromSlice(batch.Labels, tensor.Shape{n}, t.backend)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "failed to build label tensor")
	}

	tape := t.backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	features := t.embed.Forward(x)
	logits := t.head.Forward(features)

	ce := t.crossEnt.Forward(logits, y)
	cl, err := t.centerLoss.Forward(y, features)
	if err != nil {
		return StepResult{}, errors.Wrap(err, "center loss")
	}
	total := ce.Add(cl.MulScalar(float64(t.cfg.Lambda)))

	grads := autodiff.Backward(total, t.backend)
	nn.CollectGrads(t.centerLoss.Parameters(), grads)
	t.modelOpt.Step(grads)
	t.centerOpt.Step(grads)
	t.step++

	if grad := t.centerLoss.Centers().Grad(); grad != nil && t.logger.Enabled(context.Background(), slog.LevelDebug) {
		g := grad.Data()
		t.logger.Debug("step",
			"step", t.step,
			"loss", total.Item(),
			"centers_grad_norm", math.Sqrt(float64(vec.BaseDot(g, g))))
	}

	return StepResult{
		Loss:         total.Item(),
		CrossEntropy: ce.Item(),
		CenterLoss:   cl.Item(),
		Accuracy:     nn.Accuracy(logits, y),
	}, nil
}

// Evaluate measures the model on ds without recording.
func (t *Trainer) Evaluate(ds *dataset.Dataset) (Evaluation, error) {
	if ds.Len() == 0 {
		return Evaluation{}, nil
	}

	batches, err := ds.Batches(t.cfg.BatchSize, nil)
	if err != nil {
		return Evaluation{}, err
	}

	var correct, centerCorrect, distance float64
	for _, batch := range batches {
		features, err := t.Features(batch.Inputs, batch.Size())
		if err != nil {
			return Evaluation{}, err
		}
		y, err := tensor.FromSlice(batch.Labels, tensor.Shape{batch.Size()}, t.backend)
		if err != nil {
			return Evaluation{}, errors.Wrap(err, "failed to build label tensor")
		}

		var logits *tensor.Tensor[float32, Backend]
		t.backend.NoGrad(func() {
			logits = t.head.Forward(features)
		})
		correct += float64(nn.Accuracy(logits, y)) * float64(batch.Size())

		nearest, err := t.centerLoss.NearestCenter(features)
		if err != nil {
			return Evaluation{}, err
		}
		for i, c := range nearest {
			if c == batch.Labels[i] {
				centerCorrect++
			}
		}

		distances, err := t.centerLoss.Distances(y, features)
		if err != nil {
			return Evaluation{}, err
		}
		distance += float64(lo.Sum(distances))
	}

	n := float64(ds.Len())
	return Evaluation{
		Accuracy:       float32(correct / n),
		CenterAccuracy: float32(centerCorrect / n),
		MeanDistance:   float32(distance / n),
	}, nil
}

// Run trains for cfg.Epochs epochs, evaluating on val after each one and
// writing a checkpoint when configured. Cancellation of ctx is honoured
// between steps.
func (t *Trainer) Run(ctx context.Context, train, val *dataset.Dataset) ([]EpochMetrics, error) {
	t.logger.Info("training",
		"backend", t.backend.Name(),
		"train_samples", train.Len(),
		"val_samples", val.Len(),
		"classes", t.cfg.Classes,
		"feat_dim", t.cfg.FeatDim,
		"lambda", t.cfg.Lambda,
		"alpha", t.cfg.Alpha,
		"counts", t.cfg.Counts.String())

	history := make([]EpochMetrics, 0, t.cfg.Epochs)
	for e := 0; e < t.cfg.Epochs; e++ {
		batches, err := train.Batches(t.cfg.BatchSize, t.rng)
		if err != nil {
			return history, err
		}

		results := make([]StepResult, 0, len(batches))
		for _, batch := range batches {
			if err := ctx.Err(); err != nil {
				return history, errors.Wrap(err, "training interrupted")
			}
			res, err := t.Step(batch)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d step %d", t.epoch+1, t.step+1)
			}
			results = append(results, res)
		}
		t.epoch++

		metrics := summarize(t.epoch, results)
		if metrics.Validation, err = t.Evaluate(val); err != nil {
			return history, errors.Wrap(err, "evaluation failed")
		}
		history = append(history, metrics)

		t.logger.Info("epoch",
			"epoch", metrics.Epoch,
			"loss", metrics.Loss,
			"cross_entropy", metrics.CrossEntropy,
			"center_loss", metrics.CenterLoss,
			"train_acc", metrics.Accuracy,
			"val_acc", metrics.Validation.Accuracy,
			"val_center_acc", metrics.Validation.CenterAccuracy,
			"val_distance", metrics.Validation.MeanDistance)

		if t.cfg.Checkpoint != "" {
			if err := t.Save(t.cfg.Checkpoint, metrics.Loss); err != nil {
				return history, err
			}
			t.logger.Debug("checkpoint saved", "path", t.cfg.Checkpoint, "epoch", t.epoch)
		}
	}
	return history, nil
}

func summarize(epoch int, results []StepResult) EpochMetrics {
	metrics := EpochMetrics{Epoch: epoch}
	if len(results) == 0 {
		return metrics
	}

	n := float32(len(results))
	metrics.Loss = lo.SumBy(results, func(r StepResult) float32 { return r.Loss }) / n
	metrics.CrossEntropy = lo.SumBy(results, func(r StepResult) float32 { return r.CrossEntropy }) / n
	metrics.CenterLoss = lo.SumBy(results, func(r StepResult) float32 { return r.CenterLoss }) / n
	metrics.Accuracy = lo.SumBy(results, func(r StepResult) float32 { return r.Accuracy }) / n
	return metrics
}

func (t *Trainer) model() nn.Group {
	return nn.Group{
		"embed":       t.embed,
		"head":        t.head,
		"center_loss": t.centerLoss,
	}
}

func (t *Trainer) optimizers() map[string]nn.OptimizerState {
	return map[string]nn.OptimizerState{
		"model":   t.modelOpt,
		"centers": t.centerOpt,
	}
}

// Save writes the model, optimizer state and progress to path.
func (t *Trainer) Save(path string, loss float32) error {
	ckpt := &nn.Checkpoint{
		Model:      t.model(),
		Optimizers: t.optimizers(),
		Epoch:      t.epoch,
		Step:       t.step,
		Loss:       float64(loss),
		Metadata: map[string]string{
			"classes":  strconv.Itoa(t.cfg.Classes),
			"feat_dim": strconv.Itoa(t.cfg.FeatDim),
			"lambda":   strconv.FormatFloat(float64(t.cfg.Lambda), 'g', -1, 32),
			"counts":   t.cfg.Counts.String(),
		},
	}
	return errors.Wrap(ckpt.Save(path), "failed to save checkpoint")
}

// Load restores a checkpoint written by Save into this trainer, which must
// have the same architecture.
func (t *Trainer) Load(path string) error {
	ckpt, err := nn.LoadCheckpoint(path, t.backend, t.model(), t.optimizers())
	if err != nil {
		return errors.Wrap(err, "failed to load checkpoint")
	}
	t.epoch, t.step = ckpt.Epoch, ckpt.Step
	t.logger.Info("resumed", "path", path, "epoch", ckpt.Epoch, "step", ckpt.Step, "loss", ckpt.Loss)
	return nil
}
