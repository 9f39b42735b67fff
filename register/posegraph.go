package register

import (
	"context"
	"encoding/json"
	"io"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/faceforge/facescan/pointcloud"
	"github.com/faceforge/facescan/spatialmath"
)

// Node is one fragment pose in the graph, expressed in the frame of fragment
// zero.
type Node struct {
	Pose spatialmath.Pose `json:"pose"`
}

// Edge is one pairwise registration. Odometry edges connect consecutive
// fragments and are trusted; loop closure edges connect non-consecutive
// fragments and are marked uncertain so a downstream optimizer can reject them.
type Edge struct {
	Source      int              `json:"source"`
	Target      int              `json:"target"`
	Transform   spatialmath.Pose `json:"transform"`
	Information [36]float64      `json:"information"`
	Uncertain   bool             `json:"uncertain"`
}

// PoseGraph is the full multiway registration result: one node per fragment
// and one edge per registered pair.
type PoseGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// WriteJSON serializes the graph.
func (pg *PoseGraph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(pg), "encoding pose graph")
}

// ReadPoseGraphJSON is the inverse of WriteJSON.
func ReadPoseGraphJSON(r io.Reader) (*PoseGraph, error) {
	var pg PoseGraph
	if err := json.NewDecoder(r).Decode(&pg); err != nil {
		return nil, errors.Wrap(err, "decoding pose graph")
	}
	return &pg, nil
}

// BuildPoseGraph registers every ordered pair of fragments (i, j) with i < j
// and assembles the pose graph: n fragments produce n nodes and n*(n-1)/2
// edges. Node zero is the identity; each later node is the inverse of the
// odometry accumulated along the consecutive-pair chain. Cancellation is
// honored between pairwise registrations, never mid-solve, so a canceled
// context still returns promptly without leaving a partially solved pair.
// onPair, if non-nil, is called after each completed pair for progress
// reporting.
func BuildPoseGraph(
	ctx context.Context,
	clouds []*pointcloud.PointCloud,
	coarse, fine float64,
	logger golog.Logger,
	onPair func(done, total int),
) (*PoseGraph, error) {
	if len(clouds) == 0 {
		return nil, errors.New("no fragments to register")
	}

	pg := &PoseGraph{
		Nodes: []Node{{Pose: spatialmath.NewZeroPose()}},
		Edges: make([]Edge, 0, len(clouds)*(len(clouds)-1)/2),
	}
	odometry := spatialmath.NewZeroPose()
	total := len(clouds) * (len(clouds) - 1) / 2
	done := 0

	for i := 0; i < len(clouds); i++ {
		for j := i + 1; j < len(clouds); j++ {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "canceled before pair (%d, %d)", i, j)
			}

			result, err := PairwiseICP(clouds[i], clouds[j], coarse, fine, logger)
			if err != nil {
				return nil, errors.Wrapf(err, "registering pair (%d, %d)", i, j)
			}

			edge := Edge{
				Source:    i,
				Target:    j,
				Transform: result.Transform,
				Uncertain: j != i+1,
			}
			for r := 0; r < 6; r++ {
				for c := 0; c < 6; c++ {
					edge.Information[r*6+c] = result.Information.At(r, c)
				}
			}
			pg.Edges = append(pg.Edges, edge)

			if j == i+1 {
				odometry = spatialmath.Compose(result.Transform, odometry)
				pg.Nodes = append(pg.Nodes, Node{Pose: odometry.Invert()})
			}

			done++
			if onPair != nil {
				onPair(done, total)
			}
		}
	}

	logger.Infow("pose graph built", "nodes", len(pg.Nodes), "edges", len(pg.Edges))
	return pg, nil
}
