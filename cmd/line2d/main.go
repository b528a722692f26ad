package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/line2d-mcp/internal/config"
	"github.com/ironsheep/line2d-mcp/internal/imaging"
	"github.com/ironsheep/line2d-mcp/internal/library"
	"github.com/ironsheep/line2d-mcp/internal/line2d"
	"github.com/ironsheep/line2d-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage marks errors already reported together with the usage text.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "line2d: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(args, stdin, stdout, stderr)
	case "build":
		return runBuild(args, stdout, stderr)
	case "detect":
		return runDetect(args, stdout, stderr)
	case "bench":
		return runBench(args, stdout, stderr)
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "line2d %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return nil
	case "--help", "-h", "help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "line2d - gradient template matching and MCP server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  line2d [serve] [-config c.json] [-t lib.xml]        run the MCP server on stdin/stdout")
	fmt.Fprintln(w, "  line2d build -o lib.xml [-label L] images|dirs...   encode templates into a library")
	fmt.Fprintln(w, "  line2d detect -t lib.xml [-threshold N] image       print detections")
	fmt.Fprintln(w, "  line2d bench -t lib.xml [-n 20] image               time repeated detection")
	fmt.Fprintln(w, "  line2d version | help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts -config with a .json, .yaml or .yml file.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s=debug    Override the configured log level\n", config.EnvLogLevel)
}

// common holds the flags every subcommand shares.
type common struct {
	configPath string
	workers    int
}

func newFlagSet(name string, stderr io.Writer, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.configPath, "config", "", "configuration file (.json, .yaml, .yml)")
	fs.IntVar(&c.workers, "workers", 0, "worker goroutines; 0 uses the configured value")
	return fs
}

// setup loads the configuration and builds the stderr logger. stdout is
// reserved for command output and the MCP protocol.
func setup(c common, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.workers > 0 {
		cfg.Workers = c.workers
	}
	return cfg, cfg.NewLogger(stderr), nil
}

func runServe(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var c common
	var libPath string
	fs := newFlagSet("serve", stderr, &c)
	fs.StringVar(&libPath, "t", "", "template library to load at startup")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	cfg, logger, err := setup(c, stderr)
	if err != nil {
		return err
	}

	server.Version = Version
	srv := server.New(cfg, logger)
	if libPath != "" {
		lib, err := library.Load(libPath)
		if err != nil {
			return err
		}
		srv.SetLibrary(lib)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("serving MCP on stdio", "version", Version, "templates", srv.Library().Len())
	return srv.Serve(ctx, stdin, stdout)
}

func runBuild(args []string, stdout, stderr io.Writer) error {
	var c common
	var out, label string
	var mask, invert, color bool
	fs := newFlagSet("build", stderr, &c)
	fs.StringVar(&out, "o", "", "output library (.xml, .l2d or .msgpack)")
	fs.StringVar(&label, "label", "", "label for every template; defaults to file names")
	fs.BoolVar(&mask, "mask", false, "store object masks with the templates")
	fs.BoolVar(&invert, "invert", false, "invert templates first, for dark objects on a light background")
	fs.BoolVar(&color, "color", false, "encode color gradients instead of binarized luminance")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if out == "" || fs.NArg() == 0 {
		fmt.Fprintln(stderr, "build needs -o and at least one image")
		return errUsage
	}
	cfg, logger, err := setup(c, stderr)
	if err != nil {
		return err
	}
	if mask {
		cfg.KeepMask = true
	}
	if invert {
		cfg.InvertTemplates = true
	}
	if color {
		cfg.ColorGradients = true
		cfg.BinarizeLevel = 0
	}

	paths, err := library.ExpandPaths(fs.Args())
	if err != nil {
		return err
	}
	b, err := library.NewBuilder(nil, cfg.BuildOptions(logger))
	if err != nil {
		return err
	}
	lib, failed := b.BuildFiles(paths, label)
	if lib.Len() == 0 {
		return fmt.Errorf("no template could be built from %d images", len(paths))
	}
	if err := lib.Save(out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "built %d templates (%d skipped) into %s\n", lib.Len(), len(failed), out)
	for _, f := range failed {
		fmt.Fprintf(stdout, "  skipped %s\n", f.Error())
	}
	return nil
}

// detectFlags are shared by detect and bench.
type detectFlags struct {
	common
	libPath   string
	threshold float64
	labels    string
	color     bool
}

func (d *detectFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.libPath, "t", "", "template library (.xml, .l2d or .msgpack)")
	fs.Float64Var(&d.threshold, "threshold", -1, "match threshold 0-100; negative uses the configured value")
	fs.StringVar(&d.labels, "labels", "", "comma-separated labels to match; empty matches all")
	fs.BoolVar(&d.color, "color", false, "take gradients from the strongest color channel")
}

// prepare loads everything a detection run needs.
func (d *detectFlags) prepare(fs *flag.FlagSet, stderr io.Writer) (*line2d.Detector, []*line2d.TemplatePyramid, image.Image, *slog.Logger, error) {
	if d.libPath == "" || fs.NArg() != 1 {
		fmt.Fprintf(stderr, "%s needs -t and exactly one image\n", fs.Name())
		return nil, nil, nil, nil, errUsage
	}
	cfg, logger, err := setup(d.common, stderr)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if d.threshold >= 0 {
		cfg.Threshold = d.threshold
	}
	if d.color {
		cfg.ColorGradients = true
	}
	lib, err := library.Load(d.libPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	var labels []string
	if d.labels != "" {
		labels = strings.Split(d.labels, ",")
	}
	pyrs := lib.WithLabels(labels...)
	if len(pyrs) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("library %s has no matching templates", d.libPath)
	}

	det, err := line2d.NewDetector(cfg.DetectorOptions(logger))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	img, err := imaging.NewImageCache().Load(fs.Arg(0))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return det, pyrs, img, logger, nil
}

// detectionLine is the JSON form of one detection printed by detect -json.
type detectionLine struct {
	Label     string  `json:"label"`
	Score     float64 `json:"score"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Neighbors int     `json:"neighbors"`
}

func runDetect(args []string, stdout, stderr io.Writer) error {
	var d detectFlags
	var overlay string
	var asJSON bool
	fs := newFlagSet("detect", stderr, &d.common)
	d.register(fs)
	fs.StringVar(&overlay, "overlay", "", "write a PNG with the detections drawn")
	fs.BoolVar(&asJSON, "json", false, "print one JSON object per detection")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	det, pyrs, img, logger, err := d.prepare(fs, stderr)
	if err != nil {
		return err
	}

	start := time.Now()
	matches, err := det.DetectImage(img, pyrs)
	if err != nil {
		return err
	}
	groups := det.Group(matches)
	logger.Info("detection finished", "groups", len(groups), "elapsed", time.Since(start))

	enc := json.NewEncoder(stdout)
	boxes := make([]imaging.OverlayBox, 0, len(groups))
	for _, grp := range groups {
		m := grp.Representative
		r := m.BoundingRect()
		if asJSON {
			if err := enc.Encode(detectionLine{
				Label: m.Label(), Score: m.Score, X: m.X, Y: m.Y,
				Width: r.Dx(), Height: r.Dy(), Neighbors: grp.Neighbors(),
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(stdout, "%-16s score=%6.2f at (%d,%d) size %dx%d neighbors=%d\n",
				m.Label(), m.Score, m.X, m.Y, r.Dx(), r.Dy(), grp.Neighbors())
		}
		boxes = append(boxes, imaging.OverlayBox{Rect: r, Label: m.Label(), Score: m.Score})
	}

	if overlay == "" {
		return nil
	}
	res, err := imaging.RenderMatches(img, boxes)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		return fmt.Errorf("failed to decode overlay: %w", err)
	}
	if err := os.WriteFile(overlay, data, 0o644); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	return nil
}

func runBench(args []string, stdout, stderr io.Writer) error {
	var d detectFlags
	var n int
	fs := newFlagSet("bench", stderr, &d.common)
	d.register(fs)
	fs.IntVar(&n, "n", 20, "number of timed runs")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if n < 1 {
		fmt.Fprintln(stderr, "bench needs -n >= 1")
		return errUsage
	}
	det, pyrs, img, _, err := d.prepare(fs, stderr)
	if err != nil {
		return err
	}

	// One untimed run warms caches and reports the match count.
	matches, err := det.DetectImage(img, pyrs)
	if err != nil {
		return err
	}

	ms := make([]float64, n)
	for i := range ms {
		start := time.Now()
		if _, err := det.DetectImage(img, pyrs); err != nil {
			return err
		}
		ms[i] = float64(time.Since(start).Microseconds()) / 1000
	}
	sort.Float64s(ms)

	mean, std := stat.MeanStdDev(ms, nil)
	if n == 1 {
		std = 0
	}
	median := stat.Quantile(0.5, stat.Empirical, ms, nil)

	b := img.Bounds()
	fmt.Fprintf(stdout, "%d templates on %dx%d, %d matches\n", len(pyrs), b.Dx(), b.Dy(), len(matches))
	fmt.Fprintf(stdout, "runs=%d mean=%.2fms std=%.2fms median=%.2fms min=%.2fms max=%.2fms\n",
		n, mean, std, median, ms[0], ms[n-1])
	return nil
}
