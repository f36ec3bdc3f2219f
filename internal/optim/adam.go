package optim

import (
	"fmt"
	"math"

	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

// Adam implements the Adam optimizer (Adaptive Moment Estimation).
//
// Update rule:
//
//	m_t = β₁ * m_{t-1} + (1 - β₁) * g_t
//	v_t = β₂ * v_{t-1} + (1 - β₂) * g_t²
//	m̂_t = m_t / (1 - β₁^t)
//	v̂_t = v_t / (1 - β₂^t)
//	θ_t = θ_{t-1} - α * m̂_t / (√v̂_t + ε)
//
// Example:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR: 0.001,
//	}, backend)
type Adam[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	lr      float32
	beta1   float32
	beta2   float32
	eps     float32
	t       int                                             // Timestep for bias correction
	m       map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // First moment estimates
	v       map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // Second moment estimates
	backend B
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params:  params,
		lr:      config.LR,
		beta1:   config.Betas[0],
		beta2:   config.Betas[1],
		eps:     config.Eps,
		m:       make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		v:       make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		backend: backend,
	}
}

// Step performs a single optimization step.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		m, exists := a.m[param]
		if !exists {
			m = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
			a.m[param] = m
		}
		v, exists := a.v[param]
		if !exists {
			v = tensor.Zeros[float32](param.Tensor().Shape(), a.backend)
			a.v[param] = v
		}

		mData, vData := m.Data(), v.Data()
		paramData := param.Tensor().Data()
		for i, g := range grad {
			mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

			mHat := mData[i] / biasCorrection1
			vHat := vData[i] / biasCorrection2
			paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// StateDict returns the moment buffers as "m.{i}" and "v.{i}" plus the
// timestep as a 0-D int64 "step".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	step := tensor.MustNewRaw(tensor.Shape{}, tensor.Int64, a.backend.Device())
	step.AsInt64()[0] = int64(a.t)
	stateDict["step"] = step

	for i, param := range a.params {
		if m, ok := a.m[param]; ok {
			stateDict[fmt.Sprintf("m.%d", i)] = m.Raw()
		}
		if v, ok := a.v[param]; ok {
			stateDict[fmt.Sprintf("v.%d", i)] = v.Raw()
		}
	}
	return stateDict
}

// LoadStateDict restores moment buffers and the timestep.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	m := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	v := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])

	for i, param := range a.params {
		for prefix, dst := range map[string]map[*nn.Parameter[B]]*tensor.Tensor[float32, B]{"m": m, "v": v} {
			raw, ok := stateDict[fmt.Sprintf("%s.%d", prefix, i)]
			if !ok {
				continue
			}
			buf, err := loadBuffer(param, raw, a.backend)
			if err != nil {
				return fmt.Errorf("%s %d: %w", prefix, i, err)
			}
			dst[param] = buf
		}
	}

	if step, ok := stateDict["step"]; ok {
		a.t = int(step.ScalarValue())
	}
	a.m, a.v = m, v
	return nil
}
