package server

// Tool is one entry of the tools/list result.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}

func thresholdProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": "Minimum match score 0-100. Defaults to the configured threshold",
		"minimum":     0,
		"maximum":     100,
	}
}

// GetToolDefinitions lists the template and detection tools in the order tools/list reports them.
func GetToolDefinitions() []Tool {
	return []Tool{
		// Template Library
		{
			Name:        "templates_build",
			Description: "Encode template images into gradient-orientation template pyramids and add them to the active library. Images that yield too few features are reported and skipped.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Template image files or directories of images",
					},
					"label": map[string]interface{}{
						"type":        "string",
						"description": "Class label for every template. Defaults to each file name without extension",
					},
					"output": pathProperty("Optional library file (.xml, .l2d or .msgpack) to save the resulting library to"),
					"replace": map[string]interface{}{
						"type":        "boolean",
						"description": "Replace the active library instead of appending to it. Default false",
						"default":     false,
					},
				},
				"required": []string{"paths"},
			},
		},
		{
			Name:        "templates_load",
			Description: "Load a template library file (.xml, .l2d or .msgpack) and make it the active library.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the library file"),
					"append": map[string]interface{}{
						"type":        "boolean",
						"description": "Append to the active library instead of replacing it. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "templates_save",
			Description: "Save the active template library. The format is chosen by extension: .xml, .l2d or .msgpack.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path of the library file to write"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "templates_list",
			Description: "List the templates in the active library with their size and feature counts per pyramid level.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},

		// Detection
		{
			Name:        "image_detect",
			Description: "Find every instance of the active templates in an image. Overlapping matches are grouped and one representative per group is returned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty("Absolute path to the image file"),
					"threshold": thresholdProperty(),
					"min_group": map[string]interface{}{
						"type":        "integer",
						"description": "Drop groups with fewer raw matches. Defaults to the configured value",
					},
					"labels": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Only match templates with these labels",
					},
					"region": map[string]interface{}{
						"type":        "object",
						"description": "Optional search region {x1, y1, x2, y2}; results stay in image coordinates",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_render_detections",
			Description: "Run detection and return the image with one labelled box per detection group as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty("Absolute path to the image file"),
					"threshold": thresholdProperty(),
					"show_features": map[string]interface{}{
						"type":        "boolean",
						"description": "Also draw the matched template feature locations. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_orientations",
			Description: "Render the quantized dominant gradient orientations of an image, one color per orientation bin, as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
					"min_magnitude": map[string]interface{}{
						"type":        "number",
						"description": "Gradient magnitude threshold. Defaults to the configured query threshold",
					},
				},
				"required": []string{"path"},
			},
		},

		// Metadata
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList answers tools/list.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
