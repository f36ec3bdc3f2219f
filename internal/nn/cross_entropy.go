package nn

import (
	"fmt"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

// crossEntropyBackend is implemented by autodiff-aware backends that
// record the fused cross-entropy on their tape.
type crossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// Mathematical Formulation:
//
//	Loss = mean(-log_softmax(logits)[target])
//
// Gradient (Backward):
//
//	∂L/∂logits = (Softmax(logits) - y_one_hot) / batch_size
//
// Usage:
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	logits := classifier.Forward(features)     // [batch_size, num_classes]
//	loss := criterion.Forward(logits, targets) // targets: [batch_size] class indices
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{
		backend: backend,
	}
}

// Forward computes the mean cross-entropy as a 0-D tensor.
//
// On an autodiff-aware backend the operation is recorded on the tape;
// otherwise the value is computed without gradient support.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	if adBackend, ok := any(c.backend).(crossEntropyBackend); ok {
		return tensor.New[float32, B](adBackend.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
	}

	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("CrossEntropyLoss: logits must be 2D [batch_size, num_classes], got %v", shape))
	}

	batchSize, numClasses := shape[0], shape[1]
	logitsData := logits.Data()
	targetsData := targets.Data()
	if len(targetsData) != batchSize {
		panic("CrossEntropyLoss: targets must have shape [batch_size]")
	}

	var total float64
	for b := 0; b < batchSize; b++ {
		target := int(targetsData[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("CrossEntropyLoss: target %d out of range [0, %d)", target, numClasses))
		}
		total -= float64(logSoftmax(logitsData[b*numClasses : (b+1)*numClasses])[target])
	}

	loss := tensor.Zeros[float32](tensor.Shape{}, c.backend)
	loss.Data()[0] = float32(total / float64(batchSize))
	return loss
}

// Parameters returns an empty slice (loss functions have no trainable parameters).
func (c *CrossEntropyLoss[B]) Parameters() []*Parameter[B] {
	return nil
}

// Accuracy returns the fraction of rows whose argmax equals the target.
func Accuracy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) float32 {
	shape := logits.Shape()
	batchSize, numClasses := shape[0], shape[1]
	if batchSize == 0 {
		return 0
	}

	logitsData := logits.Data()
	targetsData := targets.Data()

	correct := 0
	for b := 0; b < batchSize; b++ {
		if argmax(logitsData[b*numClasses:(b+1)*numClasses]) == int(targetsData[b]) {
			correct++
		}
	}

	return float32(correct) / float32(batchSize)
}
