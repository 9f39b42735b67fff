// Package main is the facescan command line tool: batch alignment of captured
// scans into a pose graph, and single-scan surface reconstruction.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/faceforge/facescan/pointcloud"
	"github.com/faceforge/facescan/reconstruct"
	"github.com/faceforge/facescan/register"
)

var logger = golog.NewDevelopmentLogger("facescan")

func main() {
	app := &cli.App{
		Name:  "facescan",
		Usage: "align and reconstruct captured face scans",
		Commands: []*cli.Command{
			{
				Name:      "align",
				Usage:     "register two or more scans into a pose graph",
				ArgsUsage: "scan1.pcd scan2.pcd ...",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "coarse",
						Usage: "coarse correspondence distance threshold in meters",
						Value: 0.04,
					},
					&cli.Float64Flag{
						Name:  "fine",
						Usage: "fine correspondence distance threshold in meters",
						Value: 0.01,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "output pose graph path",
						Value: "graph.json",
					},
				},
				Action: alignAction,
			},
			{
				Name:      "reconstruct",
				Usage:     "reconstruct a triangle mesh from one scan",
				ArgsUsage: "scan.pcd",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "output mesh path (ascii PLY)",
						Value: "mesh.ply",
					},
				},
				Action: reconstructAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func alignAction(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) < 2 {
		return errors.New("align needs at least two scan files")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clouds := make([]*pointcloud.PointCloud, 0, len(paths))
	for _, p := range paths {
		cloud, err := pointcloud.NewFromFile(p, logger)
		if err != nil {
			return errors.Wrapf(err, "loading %s", p)
		}
		logger.Infow("loaded scan", "path", p, "points", cloud.Len())
		clouds = append(clouds, cloud)
	}

	total := len(clouds) * (len(clouds) - 1) / 2
	bar := progressbar.Default(int64(total), "registering pairs")
	graph, err := register.BuildPoseGraph(
		ctx, clouds, c.Float64("coarse"), c.Float64("fine"), logger,
		func(done, tot int) {
			utils.UncheckedErrorFunc(func() error { return bar.Add(1) })
		},
	)
	if err != nil {
		return err
	}
	utils.UncheckedErrorFunc(bar.Finish)

	outPath := c.String("out")
	//nolint:gosec
	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", outPath)
	}
	err = graph.WriteJSON(out)
	if err = multierr.Combine(err, out.Close()); err != nil {
		return err
	}
	logger.Infow("wrote pose graph", "path", outPath, "nodes", len(graph.Nodes), "edges", len(graph.Edges))
	return nil
}

func reconstructAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("reconstruct takes exactly one scan file")
	}
	inPath := c.Args().First()
	outPath := c.String("out")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reconstruct.ReconstructFile(ctx, inPath, outPath, logger); err != nil {
		return errors.Wrapf(err, "reconstructing %s", inPath)
	}
	logger.Infow("wrote mesh", "path", outPath)
	return nil
}
