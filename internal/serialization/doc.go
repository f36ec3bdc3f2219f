// Package serialization reads and writes state dictionaries in the
// SafeTensors format:
//
//	[8 bytes: header size N (uint64 LE)]
//	[N bytes: JSON header]
//	[tensor data: raw little-endian bytes]
//
// The JSON header maps each tensor name to its dtype, shape and
// [begin, end) byte offsets inside the data section. An optional
// "__metadata__" entry holds string key/value pairs; the writer stores a
// SHA-256 of the data section there, which the reader verifies.
//
// Example usage:
//
//	err := serialization.WriteSafeTensors("centers.safetensors", loss.StateDict(), map[string]string{
//	    "num_classes": "10",
//	})
//
//	state, meta, err := serialization.ReadSafeTensors("centers.safetensors", backend)
//	err = loss.LoadStateDict(state)
package serialization
