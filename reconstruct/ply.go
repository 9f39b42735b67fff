package reconstruct

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ToPLY writes the mesh in ascii PLY form.
func (m *Mesh) ToPLY(out io.Writer) error {
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "refusing to write invalid mesh")
	}
	w := bufio.NewWriter(out)

	fmt.Fprintf(w, "ply\n")
	fmt.Fprintf(w, "format ascii 1.0\n")
	fmt.Fprintf(w, "element vertex %d\n", len(m.Vertices))
	fmt.Fprintf(w, "property float x\n")
	fmt.Fprintf(w, "property float y\n")
	fmt.Fprintf(w, "property float z\n")
	withNormals := len(m.Normals) == len(m.Vertices) && len(m.Normals) > 0
	if withNormals {
		fmt.Fprintf(w, "property float nx\n")
		fmt.Fprintf(w, "property float ny\n")
		fmt.Fprintf(w, "property float nz\n")
	}
	fmt.Fprintf(w, "element face %d\n", len(m.Triangles))
	fmt.Fprintf(w, "property list uchar int vertex_indices\n")
	fmt.Fprintf(w, "end_header\n")

	for i, v := range m.Vertices {
		if withNormals {
			n := m.Normals[i]
			fmt.Fprintf(w, "%f %f %f %f %f %f\n", v.X, v.Y, v.Z, n.X, n.Y, n.Z)
		} else {
			fmt.Fprintf(w, "%f %f %f\n", v.X, v.Y, v.Z)
		}
	}
	for _, tri := range m.Triangles {
		fmt.Fprintf(w, "3 %d %d %d\n", tri[0], tri[1], tri[2])
	}
	return w.Flush()
}

// WriteMeshToFile writes the mesh to path as ascii PLY.
func WriteMeshToFile(m *Mesh, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return m.ToPLY(f)
}

// ReadPLY parses an ascii PLY mesh written by ToPLY. Vertex properties beyond
// position and normal are rejected rather than silently dropped.
func ReadPLY(in io.Reader) (*Mesh, error) {
	r := bufio.NewReader(in)

	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return nil, errors.New("not a PLY file")
	}

	var numVertices, numFaces int
	var vertexProps []string
	element := ""
header:
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "PLY header truncated")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 || fields[1] != "ascii" {
				return nil, errors.Errorf("unsupported PLY format %q", strings.TrimSpace(line))
			}
		case "comment":
		case "element":
			if len(fields) != 3 {
				return nil, errors.Errorf("malformed element line %q", strings.TrimSpace(line))
			}
			n, convErr := strconv.Atoi(fields[2])
			if convErr != nil {
				return nil, errors.Wrapf(convErr, "bad element count in %q", strings.TrimSpace(line))
			}
			element = fields[1]
			switch element {
			case "vertex":
				numVertices = n
			case "face":
				numFaces = n
			default:
				return nil, errors.Errorf("unsupported element %q", element)
			}
		case "property":
			if element == "vertex" {
				vertexProps = append(vertexProps, fields[len(fields)-1])
			}
		case "end_header":
			break header
		default:
			return nil, errors.Errorf("unsupported PLY header line %q", strings.TrimSpace(line))
		}
	}

	withNormals := false
	switch strings.Join(vertexProps, " ") {
	case "x y z":
	case "x y z nx ny nz":
		withNormals = true
	default:
		return nil, errors.Errorf("unsupported vertex properties %v", vertexProps)
	}

	mesh := &Mesh{
		Vertices:  make([]r3.Vector, 0, numVertices),
		Triangles: make([][3]int, 0, numFaces),
	}
	if withNormals {
		mesh.Normals = make([]r3.Vector, 0, numVertices)
	}

	for i := 0; i < numVertices; i++ {
		fields, err := readDataLine(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading vertex %d", i)
		}
		want := 3
		if withNormals {
			want = 6
		}
		vals, err := parseFloats(fields, want)
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
		mesh.Vertices = append(mesh.Vertices, r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]})
		if withNormals {
			mesh.Normals = append(mesh.Normals, r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]})
		}
	}

	for i := 0; i < numFaces; i++ {
		fields, err := readDataLine(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading face %d", i)
		}
		if len(fields) != 4 || fields[0] != "3" {
			return nil, errors.Errorf("face %d is not a triangle: %v", i, fields)
		}
		var tri [3]int
		for j := 0; j < 3; j++ {
			v, convErr := strconv.Atoi(fields[j+1])
			if convErr != nil {
				return nil, errors.Wrapf(convErr, "face %d", i)
			}
			tri[j] = v
		}
		mesh.Triangles = append(mesh.Triangles, tri)
	}

	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// ReadMeshFromFile reads an ascii PLY mesh from path.
func ReadMeshFromFile(path string) (_ *Mesh, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ReadPLY(f)
}

func readDataLine(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("unexpected blank line")
	}
	return fields, nil
}

func parseFloats(fields []string, want int) ([]float64, error) {
	if len(fields) != want {
		return nil, errors.Errorf("expected %d values, got %d", want, len(fields))
	}
	out := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
