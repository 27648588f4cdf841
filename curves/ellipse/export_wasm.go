//go:build wasip1

package main

//go:wasmexport min_dist
func minDist(x, y, z float64) float64 {
	return curve.MinDistance(x, y, z)
}
