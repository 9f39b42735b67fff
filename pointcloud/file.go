package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// PCDType is the data encoding of a pcd file.
type PCDType int

const (
	// PCDAscii is the ascii encoding.
	PCDAscii PCDType = 0
	// PCDBinary is the little-endian binary encoding.
	PCDBinary PCDType = 1
)

// NewFromFile returns a pointcloud read in from the given file, dispatching on
// the file extension.
func NewFromFile(fn string, logger golog.Logger) (*PointCloud, error) {
	switch filepath.Ext(fn) {
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	case ".las":
		return newFromLASFile(fn, logger)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the cloud out as binary PCD.
func WriteToFile(cloud *PointCloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ToPCD(cloud, f, PCDBinary)
}

// newFromLASFile returns a point cloud read from a LAS laser-scan file.
func newFromLASFile(fn string, logger golog.Logger) (*PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		v := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			pc.AppendColored(v, color.NRGBA{
				R: uint8(p.RgbData().Red / 256),
				G: uint8(p.RgbData().Green / 256),
				B: uint8(p.RgbData().Blue / 256),
				A: 255,
			})
		} else {
			pc.Append(v)
		}
	}
	logger.Debugf("read %d points from %q", pc.Len(), fn)
	return pc, nil
}

// ToPCD writes the cloud out in PCD format. Normals and colors are written when
// the cloud carries them.
func ToPCD(cloud *PointCloud, out io.Writer, outputType PCDType) error {
	fields := []string{"x", "y", "z"}
	if cloud.HasNormals() {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
	}
	if cloud.HasColors() {
		fields = append(fields, "rgb")
	}
	sizes := make([]string, len(fields))
	types := make([]string, len(fields))
	counts := make([]string, len(fields))
	for i, f := range fields {
		sizes[i] = "4"
		counts[i] = "1"
		if f == "rgb" {
			types[i] = "I"
		} else {
			types[i] = "F"
		}
	}
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		strings.Join(fields, " "), strings.Join(sizes, " "), strings.Join(types, " "),
		strings.Join(counts, " "), cloud.Len(), cloud.Len())
	if err != nil {
		return err
	}
	switch outputType {
	case PCDBinary:
		if _, err := fmt.Fprintf(out, "DATA binary\n"); err != nil {
			return err
		}
	case PCDAscii:
		if _, err := fmt.Fprintf(out, "DATA ascii\n"); err != nil {
			return err
		}
	default:
		return errors.Errorf("unsupported pcd output type %d", outputType)
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud *PointCloud, out io.Writer, pcdtype PCDType) error {
	var outerr error
	cloud.Iterate(func(i int, pos r3.Vector) bool {
		vals := []float64{pos.X, pos.Y, pos.Z}
		if cloud.HasNormals() {
			n := cloud.Normal(i)
			vals = append(vals, n.X, n.Y, n.Z)
		}
		var err error
		switch pcdtype {
		case PCDBinary:
			buf := make([]byte, 0, 4*(len(vals)+1))
			for _, v := range vals {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
			if cloud.HasColors() {
				buf = binary.LittleEndian.AppendUint32(buf, colorToPCDInt(cloud.Color(i)))
			}
			_, err = out.Write(buf)
		case PCDAscii:
			strs := make([]string, 0, len(vals)+1)
			for _, v := range vals {
				strs = append(strs, strconv.FormatFloat(v, 'f', -1, 32))
			}
			if cloud.HasColors() {
				strs = append(strs, strconv.FormatUint(uint64(colorToPCDInt(cloud.Color(i))), 10))
			}
			_, err = fmt.Fprintln(out, strings.Join(strs, " "))
		}
		outerr = err
		return err == nil
	})
	return outerr
}

func colorToPCDInt(c color.NRGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func pcdIntToColor(v uint32) color.NRGBA {
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

type pcdHeader struct {
	fields []string
	points int
	data   string
}

// ReadPCD reads a PCD-formatted cloud. The x/y/z fields are required; normals
// and packed rgb are restored when present.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}

	fieldIdx := map[string]int{}
	for i, f := range header.fields {
		fieldIdx[f] = i
	}
	for _, req := range []string{"x", "y", "z"} {
		if _, ok := fieldIdx[req]; !ok {
			return nil, errors.Errorf("pcd is missing required field %q", req)
		}
	}
	_, hasNormals := fieldIdx["normal_x"]
	_, hasColor := fieldIdx["rgb"]

	pc := NewWithPrealloc(header.points)
	readRow := func() ([]float64, uint32, error) {
		raw := make([]float64, len(header.fields))
		var rgb uint32
		switch header.data {
		case "ascii":
			line, err := in.ReadString('\n')
			if err != nil {
				return nil, 0, err
			}
			tokens := strings.Fields(line)
			if len(tokens) != len(header.fields) {
				return nil, 0, errors.Errorf("expected %d fields per line, got %d", len(header.fields), len(tokens))
			}
			for i, tok := range tokens {
				if header.fields[i] == "rgb" {
					c, err := strconv.ParseUint(tok, 10, 32)
					if err != nil {
						return nil, 0, err
					}
					rgb = uint32(c)
					continue
				}
				raw[i], err = strconv.ParseFloat(tok, 64)
				if err != nil {
					return nil, 0, err
				}
			}
		case "binary":
			buf := make([]byte, 4*len(header.fields))
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, 0, err
			}
			for i := range header.fields {
				bits := binary.LittleEndian.Uint32(buf[4*i:])
				if header.fields[i] == "rgb" {
					rgb = bits
					continue
				}
				raw[i] = float64(math.Float32frombits(bits))
			}
		default:
			return nil, 0, errors.Errorf("unsupported pcd data encoding %q", header.data)
		}
		return raw, rgb, nil
	}

	for n := 0; n < header.points; n++ {
		raw, rgb, err := readRow()
		if err != nil {
			return nil, errors.Wrapf(err, "reading pcd point %d", n)
		}
		p := r3.Vector{X: raw[fieldIdx["x"]], Y: raw[fieldIdx["y"]], Z: raw[fieldIdx["z"]]}
		switch {
		case hasColor:
			pc.AppendColored(p, pcdIntToColor(rgb))
		default:
			pc.Append(p)
		}
		if hasNormals {
			pc.SetNormal(pc.Len()-1, r3.Vector{
				X: raw[fieldIdx["normal_x"]],
				Y: raw[fieldIdx["normal_y"]],
				Z: raw[fieldIdx["normal_z"]],
			})
		}
	}
	return pc, nil
}

func readPCDHeader(in *bufio.Reader) (*pcdHeader, error) {
	header := &pcdHeader{points: -1}
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "reading pcd header")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		switch tokens[0] {
		case "FIELDS":
			header.fields = tokens[1:]
		case "POINTS":
			if len(tokens) != 2 {
				return nil, errors.New("malformed POINTS line")
			}
			header.points, err = strconv.Atoi(tokens[1])
			if err != nil {
				return nil, errors.Wrap(err, "parsing POINTS")
			}
		case "DATA":
			if len(tokens) != 2 {
				return nil, errors.New("malformed DATA line")
			}
			header.data = tokens[1]
			if header.points < 0 {
				return nil, errors.New("pcd header is missing POINTS")
			}
			if len(header.fields) == 0 {
				return nil, errors.New("pcd header is missing FIELDS")
			}
			return header, nil
		case "VERSION", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT":
			// sizes and layout are implied by the field names we support
		default:
			return nil, errors.Errorf("unknown pcd header line %q", tokens[0])
		}
	}
}
