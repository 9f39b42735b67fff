package face

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"

	_ "embed"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// shape_model.bin holds the bundled 68-point mean face shape, normalized to the
// unit square, in the flm1 format below.
//
//go:embed shape_model.bin
var bundledModel []byte

var shapeModelMagic = [4]byte{'f', 'l', 'm', '1'}

// shapeModel is the deserialized landmark predictor: a mean face shape that the
// detector fits into a supplied bounding box.
type shapeModel struct {
	mean [NumLandmarks]r2.Point
}

// parseShapeModel deserializes the flm1 binary format: a 4-byte magic, a
// little-endian uint16 version and point count, then count (x, y) float32 pairs
// in unit-square coordinates.
func parseShapeModel(data []byte) (*shapeModel, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil {
		return nil, errors.Wrap(err, "reading shape model magic")
	}
	if magic != shapeModelMagic {
		return nil, errors.Errorf("bad shape model magic %q", magic)
	}
	var version, count uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "reading shape model version")
	}
	if version != 1 {
		return nil, errors.Errorf("unsupported shape model version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(err, "reading shape model point count")
	}
	if count != NumLandmarks {
		return nil, errors.Errorf("shape model has %d points, want %d", count, NumLandmarks)
	}
	model := &shapeModel{}
	for i := 0; i < NumLandmarks; i++ {
		var x, y float32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, errors.Wrapf(err, "reading shape model point %d", i)
		}
		if err := binary.Read(r, binary.LittleEndian, &y); err != nil {
			return nil, errors.Wrapf(err, "reading shape model point %d", i)
		}
		fx, fy := float64(x), float64(y)
		if math.IsNaN(fx) || math.IsNaN(fy) {
			return nil, errors.Errorf("shape model point %d is not finite", i)
		}
		model.mean[i] = r2.Point{X: fx, Y: fy}
	}
	return model, nil
}

func loadShapeModel(path string) (*shapeModel, error) {
	if path == "" {
		return parseShapeModel(bundledModel)
	}
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shape model %q", path)
	}
	return parseShapeModel(data)
}
