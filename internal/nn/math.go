package nn

import "math"

// logSoftmax computes log-softmax of one row with the log-sum-exp trick.
func logSoftmax(z []float32) []float32 {
	maxZ := z[0]
	for _, v := range z[1:] {
		maxZ = max(maxZ, v)
	}

	var sumExp float64
	for _, v := range z {
		sumExp += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sumExp))

	result := make([]float32, len(z))
	for i, v := range z {
		result[i] = v - logSumExp
	}
	return result
}

// argmax returns the index of the first maximum.
func argmax(z []float32) int {
	maxIdx := 0
	for i := 1; i < len(z); i++ {
		if z[i] > z[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}
