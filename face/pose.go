package face

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/faceforge/facescan/spatialmath"
	"github.com/faceforge/facescan/transform"
)

// ErrPoseEstimationFailed means the 2D/3D correspondences were degenerate and
// the perspective solve did not converge. Recoverable: skip the pose overlay
// for that face.
var ErrPoseEstimationFailed = errors.New("pose estimation failed")

// gazeForwardPoint is the synthetic forward point projected through the
// recovered pose to obtain the gaze-direction endpoint for the debug ray.
var gazeForwardPoint = r3.Vector{X: 0, Y: 0, Z: 1000}

// PoseEstimate is a face-to-camera pose recovered from landmark/depth
// correspondences, produced once per detected face per frame.
type PoseEstimate struct {
	RotationVector r3.Vector
	Rotation       *spatialmath.RotationMatrix
	Translation    r3.Vector
	Euler          *spatialmath.EulerAngles
	Gaze           r2.Point
}

const (
	pnpMaxIterations = 100
	pnpDerivStep     = 1e-6
	pnpMinDepthSpan  = 1e-9
)

// EstimatePose solves the perspective-n-point problem for the given 2D image
// points and corresponding 3D points, recovering the rotation and translation
// that place the 3D points into the camera frame. It uses a damped Gauss-Newton
// iteration over a rotation-vector parametrization. Degenerate correspondence
// sets surface ErrPoseEstimationFailed rather than an identity pose.
func EstimatePose(imagePts []r2.Point, objectPts []r3.Vector, intr *transform.CameraIntrinsics) (*PoseEstimate, error) {
	if len(imagePts) != len(objectPts) || len(imagePts) < 4 {
		return nil, errors.Wrapf(ErrPoseEstimationFailed,
			"need at least 4 matched correspondences, got %d image and %d object points",
			len(imagePts), len(objectPts))
	}
	if err := intr.CheckValid(); err != nil {
		return nil, errors.Wrap(ErrPoseEstimationFailed, err.Error())
	}
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for _, p := range objectPts {
		minZ = math.Min(minZ, p.Z)
		maxZ = math.Max(maxZ, p.Z)
	}
	if maxZ-minZ < pnpMinDepthSpan {
		return nil, errors.Wrap(ErrPoseEstimationFailed, "zero depth spread across correspondences")
	}

	// params: rotation vector then translation
	params := make([]float64, 6)
	if minZ <= 0 {
		// keep all points in front of the camera for the initial projection
		params[5] = 1 - minZ
	}

	residuals := func(p []float64) ([]float64, bool) {
		rot := spatialmath.RotationMatrixFromVector(r3.Vector{X: p[0], Y: p[1], Z: p[2]})
		t := r3.Vector{X: p[3], Y: p[4], Z: p[5]}
		res := make([]float64, 2*len(objectPts))
		for i, obj := range objectPts {
			c := rot.Mul(obj).Add(t)
			if c.Z <= 1e-9 {
				return nil, false
			}
			px, py := intr.PointToPixel(c.X, c.Y, c.Z)
			res[2*i] = px - imagePts[i].X
			res[2*i+1] = py - imagePts[i].Y
		}
		return res, true
	}

	cost := func(res []float64) float64 {
		var sum float64
		for _, r := range res {
			sum += r * r
		}
		return sum
	}

	res, ok := residuals(params)
	if !ok {
		return nil, errors.Wrap(ErrPoseEstimationFailed, "correspondences project behind the camera")
	}
	prevCost := cost(res)
	lambda := 1e-3
	converged := prevCost < 1e-12

	for iter := 0; iter < pnpMaxIterations && !converged; iter++ {
		jac := mat.NewDense(len(res), 6, nil)
		for j := 0; j < 6; j++ {
			bumped := append([]float64(nil), params...)
			bumped[j] += pnpDerivStep
			resHi, okHi := residuals(bumped)
			bumped[j] -= 2 * pnpDerivStep
			resLo, okLo := residuals(bumped)
			if !okHi || !okLo {
				return nil, errors.Wrap(ErrPoseEstimationFailed, "solver left the valid projection region")
			}
			for i := range res {
				jac.Set(i, j, (resHi[i]-resLo[i])/(2*pnpDerivStep))
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		rhs := mat.NewVecDense(6, nil)
		resVec := mat.NewVecDense(len(res), res)
		rhs.MulVec(jac.T(), resVec)

		var step *mat.VecDense
		for {
			damped := mat.NewDense(6, 6, nil)
			damped.CloneFrom(&jtj)
			for i := 0; i < 6; i++ {
				damped.Set(i, i, damped.At(i, i)+lambda)
			}
			trial := mat.NewVecDense(6, nil)
			if err := trial.SolveVec(damped, rhs); err != nil {
				return nil, errors.Wrap(ErrPoseEstimationFailed, "normal equations are singular")
			}
			next := make([]float64, 6)
			for i := range next {
				next[i] = params[i] - trial.AtVec(i)
			}
			nextRes, okNext := residuals(next)
			if okNext {
				if nextCost := cost(nextRes); nextCost < prevCost {
					params = next
					res = nextRes
					prevCost = nextCost
					step = trial
					lambda = math.Max(lambda/4, 1e-12)
					break
				}
			}
			lambda *= 10
			if lambda > 1e12 {
				return nil, errors.Wrap(ErrPoseEstimationFailed, "failed to converge")
			}
		}
		if prevCost < 1e-12 || mat.Norm(step, 2) < 1e-12 {
			converged = true
		}
	}
	if !converged && prevCost > 1e-6 {
		return nil, errors.Wrap(ErrPoseEstimationFailed, "residual error too large after iteration limit")
	}

	rotVec := r3.Vector{X: params[0], Y: params[1], Z: params[2]}
	rot := spatialmath.RotationMatrixFromVector(rotVec)
	trans := r3.Vector{X: params[3], Y: params[4], Z: params[5]}

	fwd := rot.Mul(gazeForwardPoint).Add(trans)
	gx, gy := intr.PointToPixel(fwd.X, fwd.Y, fwd.Z)

	return &PoseEstimate{
		RotationVector: rotVec,
		Rotation:       rot,
		Translation:    trans,
		Euler:          rot.EulerAngles(),
		Gaze:           r2.Point{X: gx, Y: gy},
	}, nil
}
