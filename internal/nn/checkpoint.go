package nn

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aivclab/neodroidvision/internal/serialization"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Metadata keys written by Checkpoint.Save.
const (
	MetaEpoch     = "epoch"
	MetaStep      = "step"
	MetaLoss      = "loss"
	MetaCreatedAt = "created_at"
)

const optimizerPrefix = "optimizer."

// OptimizerState represents an optimizer that can save/load its state.
//
// This interface is used by checkpoints to serialize optimizer state
// without creating import cycles. Optimizers from the optim package
// implement this interface.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	GetLR() float32
}

// Group combines named Stateful modules into one, prefixing each key with
// "<name>.".
type Group map[string]Stateful

// StateDict returns the merged, prefixed state of every member.
func (g Group) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, member := range g {
		for key, raw := range member.StateDict() {
			stateDict[name+"."+key] = raw
		}
	}
	return stateDict
}

// LoadStateDict routes prefixed keys to their members.
func (g Group) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, name := range slices.Sorted(maps.Keys(g)) {
		if err := g[name].LoadStateDict(subDict(stateDict, name+".")); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

func subDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			out[rest] = raw
		}
	}
	return out
}

// Checkpoint represents a training state snapshot: model parameters,
// optimizer state and training progress.
//
// Example:
//
//	ckpt := &nn.Checkpoint{
//	    Model:      nn.Group{"embed": embed, "center_loss": centerLoss},
//	    Optimizers: map[string]nn.OptimizerState{"centers": centerOpt},
//	    Epoch:      10,
//	}
//	err := ckpt.Save("epoch10.safetensors")
type Checkpoint struct {
	Model      Stateful                  // The model (or Group of modules)
	Optimizers map[string]OptimizerState // Optimizers by name (may be empty)
	Epoch      int                       // Training epoch number
	Step       int64                     // Training step number
	Loss       float64                   // Loss value at this checkpoint
	Metadata   map[string]string         // Additional training metadata
	CreatedAt  time.Time                 // When the checkpoint was created
}

// Save writes the checkpoint to a SafeTensors file.
//
// Optimizer state is stored under "optimizer.<name>.<key>"; progress and
// learning rates go to the file's metadata.
func (c *Checkpoint) Save(path string) error {
	stateDict := c.Model.StateDict()

	metadata := make(map[string]string, len(c.Metadata)+4+len(c.Optimizers))
	maps.Copy(metadata, c.Metadata)

	for name, opt := range c.Optimizers {
		prefix := optimizerPrefix + name + "."
		for key, raw := range opt.StateDict() {
			stateDict[prefix+key] = raw
		}
		metadata[prefix+"lr"] = strconv.FormatFloat(float64(opt.GetLR()), 'g', -1, 32)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata[MetaEpoch] = strconv.Itoa(c.Epoch)
	metadata[MetaStep] = strconv.FormatInt(c.Step, 10)
	metadata[MetaLoss] = strconv.FormatFloat(c.Loss, 'g', -1, 64)
	metadata[MetaCreatedAt] = createdAt.Format(time.RFC3339)

	if err := serialization.WriteSafeTensors(path, stateDict, metadata); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores model and optimizer state from a file written by
// Checkpoint.Save. model and optimizers must be constructed with the same
// architecture and configuration as when the checkpoint was saved.
func LoadCheckpoint(
	path string,
	backend tensor.Backend,
	model Stateful,
	optimizers map[string]OptimizerState,
) (*Checkpoint, error) {
	stateDict, metadata, err := serialization.ReadSafeTensors(path, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if _, ok := metadata[MetaEpoch]; !ok {
		return nil, fmt.Errorf("file is not a checkpoint")
	}

	modelState := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if !strings.HasPrefix(key, optimizerPrefix) {
			modelState[key] = raw
		}
	}
	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}

	for name, opt := range optimizers {
		if err := opt.LoadStateDict(subDict(stateDict, optimizerPrefix+name+".")); err != nil {
			return nil, fmt.Errorf("failed to load optimizer %s state: %w", name, err)
		}
	}

	ckpt := &Checkpoint{
		Model:      model,
		Optimizers: optimizers,
		Metadata:   metadata,
	}

	if ckpt.Epoch, err = strconv.Atoi(metadata[MetaEpoch]); err != nil {
		return nil, fmt.Errorf("invalid epoch: %w", err)
	}
	if v, ok := metadata[MetaStep]; ok {
		if ckpt.Step, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid step: %w", err)
		}
	}
	if v, ok := metadata[MetaLoss]; ok {
		if ckpt.Loss, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid loss: %w", err)
		}
	}
	if v, ok := metadata[MetaCreatedAt]; ok {
		if ckpt.CreatedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("invalid created_at: %w", err)
		}
	}

	return ckpt, nil
}
