package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ironsheep/line2d-mcp/internal/detection"
	"github.com/ironsheep/line2d-mcp/internal/imaging"
	"github.com/ironsheep/line2d-mcp/internal/library"
	"github.com/ironsheep/line2d-mcp/internal/line2d"
)

// ErrNoTemplates is returned by detection tools when the active library has
// no template matching the request.
var ErrNoTemplates = errors.New("no templates loaded")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_detect", "templates_load").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// They affect only the failing call.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}
	s.logger.Debug("tool done", "tool", params.Name, "elapsed", time.Since(start))

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Template Library
	case "templates_build":
		return s.handleTemplatesBuild(args)
	case "templates_load":
		return s.handleTemplatesLoad(args)
	case "templates_save":
		return s.handleTemplatesSave(args)
	case "templates_list":
		return s.handleTemplatesList(args)

	// Detection
	case "image_detect":
		return s.handleImageDetect(args)
	case "image_render_detections":
		return s.handleImageRenderDetections(args)
	case "image_orientations":
		return s.handleImageOrientations(args)

	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Template Library Handlers ===

type templatesBuildArgs struct {
	Paths   []string `json:"paths"`
	Label   string   `json:"label"`
	Output  string   `json:"output"`
	Replace bool     `json:"replace"`
}

// BuildFailure is one template image that could not be encoded.
type BuildFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BuildResult summarises a templates_build call.
type BuildResult struct {
	Built     int            `json:"built"`
	Skipped   []BuildFailure `json:"skipped,omitempty"`
	Templates int            `json:"templates"`
	Labels    []string       `json:"labels"`
	SavedTo   string         `json:"saved_to,omitempty"`
}

func (s *Server) handleTemplatesBuild(args json.RawMessage) (interface{}, error) {
	var a templatesBuildArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, fmt.Errorf("no template paths given")
	}
	paths, err := library.ExpandPaths(a.Paths)
	if err != nil {
		return nil, err
	}

	b, err := library.NewBuilder(s.cache, s.cfg.BuildOptions(s.logger))
	if err != nil {
		return nil, err
	}
	built, failed := b.BuildFiles(paths, a.Label)

	lib := built
	if !a.Replace {
		lib = library.New(append(append([]*line2d.TemplatePyramid(nil), s.Library().Pyramids...), built.Pyramids...)...)
	}

	res := &BuildResult{Built: built.Len()}
	for _, f := range failed {
		res.Skipped = append(res.Skipped, BuildFailure{Path: f.Path, Error: f.Err.Error()})
	}
	if a.Output != "" {
		if err := lib.Save(a.Output); err != nil {
			return nil, err
		}
		res.SavedTo = a.Output
	}
	s.SetLibrary(lib)
	res.Templates = lib.Len()
	res.Labels = lib.Labels()
	return res, nil
}

type templatesLoadArgs struct {
	Path   string `json:"path"`
	Append bool   `json:"append"`
}

// LibraryResult reports the state of the active library.
type LibraryResult struct {
	Templates int      `json:"templates"`
	Labels    []string `json:"labels"`
	Path      string   `json:"path,omitempty"`
}

func (s *Server) handleTemplatesLoad(args json.RawMessage) (interface{}, error) {
	var a templatesLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	loaded, err := library.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if a.Append {
		loaded = library.New(append(append([]*line2d.TemplatePyramid(nil), s.Library().Pyramids...), loaded.Pyramids...)...)
	}
	s.SetLibrary(loaded)
	return &LibraryResult{Templates: loaded.Len(), Labels: loaded.Labels(), Path: a.Path}, nil
}

type templatesSaveArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleTemplatesSave(args json.RawMessage) (interface{}, error) {
	var a templatesSaveArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	lib := s.Library()
	if lib.Len() == 0 {
		return nil, ErrNoTemplates
	}
	if err := lib.Save(a.Path); err != nil {
		return nil, err
	}
	return &LibraryResult{Templates: lib.Len(), Labels: lib.Labels(), Path: a.Path}, nil
}

// TemplateInfo describes one pyramid of the active library.
type TemplateInfo struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Ratio    int    `json:"ratio"`
	Features []int  `json:"features_per_level"`
	HasMask  bool   `json:"has_mask"`
}

func (s *Server) handleTemplatesList(args json.RawMessage) (interface{}, error) {
	lib := s.Library()
	infos := make([]TemplateInfo, 0, lib.Len())
	for i, p := range lib.Pyramids {
		info := TemplateInfo{Index: i, Label: p.Label, Ratio: p.Ratio}
		if len(p.Levels) > 0 {
			info.Width, info.Height = p.Levels[0].Width, p.Levels[0].Height
			info.HasMask = p.Levels[0].Mask != nil
		}
		for _, t := range p.Levels {
			info.Features = append(info.Features, len(t.Features))
		}
		infos = append(infos, info)
	}
	return map[string]interface{}{
		"templates": infos,
		"labels":    lib.Labels(),
	}, nil
}

// === Detection Handlers ===

type regionArg struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type imageDetectArgs struct {
	Path         string     `json:"path"`
	Threshold    *float64   `json:"threshold"`
	MinGroup     *int       `json:"min_group"`
	Labels       []string   `json:"labels"`
	Region       *regionArg `json:"region"`
	ShowFeatures bool       `json:"show_features"`
}

// Detection is one group of overlapping matches.
type Detection struct {
	Label       string           `json:"label"`
	Score       float64          `json:"score"`
	X           int              `json:"x"`
	Y           int              `json:"y"`
	Bounds      detection.Bounds `json:"bounds"`
	Neighbors   int              `json:"neighbors"`
	GroupBounds detection.Bounds `json:"group_bounds"`
}

// DetectResult is the outcome of matching the active library against one
// image.
type DetectResult struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Templates  int         `json:"templates"`
	RawMatches int         `json:"raw_matches"`
	Detections []Detection `json:"detections"`
	ElapsedMS  float64     `json:"elapsed_ms"`
}

// detect runs the detector configured for this call and returns the groups
// with coordinates in the full image.
func (s *Server) detect(a imageDetectArgs) (*DetectResult, []detection.MatchGroup[line2d.Match], error) {
	pyrs := s.Library().WithLabels(a.Labels...)
	if len(pyrs) == 0 {
		return nil, nil, ErrNoTemplates
	}

	opts := s.cfg.DetectorOptions(s.logger)
	if a.Threshold != nil {
		opts.Match.Threshold = *a.Threshold
	}
	if a.MinGroup != nil {
		opts.Cluster.MinNeighbors = *a.MinGroup
	}
	det, err := line2d.NewDetector(opts)
	if err != nil {
		return nil, nil, err
	}

	var region *image.Rectangle
	if a.Region != nil {
		r := image.Rect(a.Region.X1, a.Region.Y1, a.Region.X2, a.Region.Y2)
		region = &r
	}
	res := &DetectResult{Templates: len(pyrs)}

	start := time.Now()
	var (
		matches []line2d.Match
		offset  image.Point
	)
	if s.cfg.ColorGradients {
		matches, offset, err = s.detectColor(det, a.Path, region, pyrs, res)
	} else {
		matches, offset, err = s.detectGray(det, a.Path, region, pyrs, res)
	}
	if err != nil {
		return nil, nil, err
	}
	for i := range matches {
		matches[i].X += offset.X
		matches[i].Y += offset.Y
	}
	groups := det.Group(matches)
	res.ElapsedMS = float64(time.Since(start).Microseconds()) / 1000

	res.RawMatches = len(matches)
	res.Detections = make([]Detection, 0, len(groups))
	for _, grp := range groups {
		m := grp.Representative
		res.Detections = append(res.Detections, Detection{
			Label:       m.Label(),
			Score:       m.Score,
			X:           m.X,
			Y:           m.Y,
			Bounds:      detection.BoundsOf(m.BoundingRect()),
			Neighbors:   grp.Neighbors(),
			GroupBounds: detection.BoundsOf(grp.Bounds()),
		})
	}
	return res, groups, nil
}

// detectGray runs det on the luminance of the image at path, cropped to
// region when one is given. The full image size is stored in res.
func (s *Server) detectGray(det *line2d.Detector, path string, region *image.Rectangle, pyrs []*line2d.TemplatePyramid, res *DetectResult) ([]line2d.Match, image.Point, error) {
	g, err := imaging.LoadGray(s.cache, path)
	if err != nil {
		return nil, image.Point{}, err
	}
	res.Width, res.Height = g.Width, g.Height
	var offset image.Point
	if region != nil {
		if g, err = imaging.Crop(g, *region); err != nil {
			return nil, image.Point{}, err
		}
		offset = region.Intersect(image.Rect(0, 0, res.Width, res.Height)).Min
	}
	matches, err := det.DetectGray(g, pyrs)
	return matches, offset, err
}

// detectColor is detectGray for color gradients.
func (s *Server) detectColor(det *line2d.Detector, path string, region *image.Rectangle, pyrs []*line2d.TemplatePyramid, res *DetectResult) ([]line2d.Match, image.Point, error) {
	img, err := imaging.LoadColor(s.cache, path)
	if err != nil {
		return nil, image.Point{}, err
	}
	res.Width, res.Height = img.Rect.Dx(), img.Rect.Dy()
	var offset image.Point
	if region != nil {
		if img, err = imaging.CropColor(img, *region); err != nil {
			return nil, image.Point{}, err
		}
		offset = region.Intersect(image.Rect(0, 0, res.Width, res.Height)).Min
	}
	matches, err := det.DetectColor(img, pyrs)
	return matches, offset, err
}

func (s *Server) handleImageDetect(args json.RawMessage) (interface{}, error) {
	var a imageDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, _, err := s.detect(a)
	return res, err
}

// RenderResult is a detection overlay plus the detections drawn on it.
type RenderResult struct {
	*imaging.OverlayResult
	Detections int `json:"detections"`
}

func (s *Server) handleImageRenderDetections(args json.RawMessage) (interface{}, error) {
	var a imageDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	a.Region = nil
	_, groups, err := s.detect(a)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	boxes := make([]imaging.OverlayBox, len(groups))
	for i, grp := range groups {
		m := grp.Representative
		boxes[i] = imaging.OverlayBox{Rect: m.BoundingRect(), Label: m.Label(), Score: m.Score}
		if a.ShowFeatures {
			boxes[i].Points = m.Points()
		}
	}
	overlay, err := imaging.RenderMatches(img, boxes)
	if err != nil {
		return nil, err
	}
	return &RenderResult{OverlayResult: overlay, Detections: len(groups)}, nil
}

type imageOrientationsArgs struct {
	Path         string   `json:"path"`
	MinMagnitude *float64 `json:"min_magnitude"`
}

func (s *Server) handleImageOrientations(args json.RawMessage) (interface{}, error) {
	var a imageOrientationsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	minMag := s.cfg.MinMagnitudeQuery
	if a.MinMagnitude != nil {
		minMag = *a.MinMagnitude
	}
	var om *line2d.OrientationMap
	if s.cfg.ColorGradients {
		img, err := imaging.LoadColor(s.cache, a.Path)
		if err != nil {
			return nil, err
		}
		om, err = line2d.ComputeOrientationMapColor(imaging.SmoothColor(img, s.cfg.SmoothRadius), minMag, s.cfg.MinSameOrientations)
		if err != nil {
			return nil, err
		}
	} else {
		g, err := imaging.LoadGray(s.cache, a.Path)
		if err != nil {
			return nil, err
		}
		if om, err = line2d.ComputeOrientationMap(imaging.Smooth(g, s.cfg.SmoothRadius), minMag, s.cfg.MinSameOrientations); err != nil {
			return nil, err
		}
	}
	return imaging.RenderOrientations(om.Indices(), om.Width, om.Height, line2d.NumOrientations)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}
