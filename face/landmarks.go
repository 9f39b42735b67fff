// Package face implements the per-frame path of the capture pipeline: 68-point
// facial landmark fitting, depth-fused head pose estimation, and overlay
// annotation.
package face

import (
	"github.com/golang/geo/r2"
)

// NumLandmarks is the fixed number of facial landmarks per detected face.
const NumLandmarks = 68

// Landmark indices fixed by the 68-point annotation contract.
const (
	// LandmarkChin is the bottom of the jaw ring.
	LandmarkChin = 8
	// LandmarkNoseTip is the tip of the nose.
	LandmarkNoseTip = 30
	// LandmarkLeftEyeOuter is the outer corner of the left eye.
	LandmarkLeftEyeOuter = 36
	// LandmarkRightEyeOuter is the outer corner of the right eye.
	LandmarkRightEyeOuter = 45
	// LandmarkLeftMouthCorner is the left corner of the mouth.
	LandmarkLeftMouthCorner = 48
	// LandmarkRightMouthCorner is the right corner of the mouth.
	LandmarkRightMouthCorner = 54
)

// poseLandmarkIndices are the six landmarks fused with depth for head pose, in
// the order the pose solver expects them.
var poseLandmarkIndices = [6]int{
	LandmarkNoseTip,
	LandmarkChin,
	LandmarkLeftEyeOuter,
	LandmarkRightEyeOuter,
	LandmarkLeftMouthCorner,
	LandmarkRightMouthCorner,
}

// LandmarkSet is exactly 68 ordered 2D image points for one detected face.
// It is produced per detection call and immutable afterward.
type LandmarkSet struct {
	pts [NumLandmarks]r2.Point
}

// Point returns the i-th landmark.
func (ls *LandmarkSet) Point(i int) r2.Point {
	return ls.pts[i]
}

// Points returns a copy of all 68 landmarks in index order.
func (ls *LandmarkSet) Points() []r2.Point {
	out := make([]r2.Point, NumLandmarks)
	copy(out, ls.pts[:])
	return out
}

// PosePoints returns the six landmarks used for head pose estimation: nose tip,
// chin, eye outer corners, mouth corners.
func (ls *LandmarkSet) PosePoints() [6]r2.Point {
	var out [6]r2.Point
	for i, idx := range poseLandmarkIndices {
		out[i] = ls.pts[idx]
	}
	return out
}
