// Package simplify reduces ordered point sequences to visually equivalent
// subsets so long routes stay cheap to store, transmit, and render.
package simplify

import "fieldtrack/pkg/geo"

// DefaultEpsilon is the Ramer-Douglas-Peucker tolerance in meters.
const DefaultEpsilon = 10.0

// DouglasPeucker reduces points to a subset whose shape deviates from the
// original by at most epsilon meters. Endpoints are always retained and
// sequences of length <= 2 are returned unchanged. The input is not mutated.
func DouglasPeucker(points []geo.Point, epsilon float64) []geo.Point {
	if len(points) <= 2 {
		out := make([]geo.Point, len(points))
		copy(out, points)
		return out
	}

	first := points[0]
	last := points[len(points)-1]

	maxDist := 0.0
	maxIdx := 0
	for i := 1; i < len(points)-1; i++ {
		d := geo.PerpendicularDistance(points[i], first, last)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist <= epsilon {
		return []geo.Point{first, last}
	}

	left := DouglasPeucker(points[:maxIdx+1], epsilon)
	right := DouglasPeucker(points[maxIdx:], epsilon)

	// The split point appears at the end of left and the start of right.
	return append(left[:len(left)-1], right...)
}

// Decimate keeps every factor-th point plus the final point. A factor <= 1
// returns a copy of the input unchanged.
func Decimate(points []geo.Point, factor int) []geo.Point {
	if factor <= 1 || len(points) <= 2 {
		out := make([]geo.Point, len(points))
		copy(out, points)
		return out
	}

	out := make([]geo.Point, 0, len(points)/factor+2)
	for i := 0; i < len(points); i += factor {
		out = append(out, points[i])
	}
	if lastIdx := len(points) - 1; lastIdx%factor != 0 {
		out = append(out, points[lastIdx])
	}
	return out
}
