package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// noArgs is the schema for tools that take no parameters.
func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Lot State
		{
			Name:        "parking_status",
			Description: "Report the monitor state: run ID, engine phase, whether the frame loop is running, frames seen and sampled, and the last error.",
			InputSchema: noArgs(),
		},
		{
			Name:        "parking_spots",
			Description: "List every parking spot with its bounding box, current status (empty, occupied or unknown), last classifier confidence and last change magnitude.",
			InputSchema: noArgs(),
		},
		{
			Name:        "parking_spot",
			Description: "Get the geometry and current status of one parking spot by index.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "Spot index (0-based, in mask discovery order)",
						"minimum":     0,
					},
				},
				"required": []string{"index"},
			},
		},
		{
			Name:        "parking_statistics",
			Description: "Get lot-wide counts: total spots, available, occupied, unknown, and the availability rate.",
			InputSchema: noArgs(),
		},

		// Frames
		{
			Name:        "parking_submit_frame",
			Description: "Submit an image file as the next video frame. The frame is counted, and classified when it falls on the sampling cadence. Returns which spots were re-evaluated and which changed status.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the frame image (PNG, JPEG, GIF, BMP or TIFF)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "parking_annotated_frame",
			Description: "Render the latest frame with a colored box per spot (green empty, red occupied) and an availability banner. Returns base64-encoded PNG, or writes the PNG when output_path is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file path to write the PNG to instead of returning it inline",
					},
				},
			},
		},
		{
			Name:        "parking_extract_spots",
			Description: "Extract parking spot rectangles from a binary mask image without touching the running monitor. Useful for checking a mask before deploying it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the mask image",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Factor applied to every box (mask resolution to frame resolution)",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},

		// History
		{
			Name:        "parking_spot_history",
			Description: "List recorded status changes for one spot, newest first. Requires a history database.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "Spot index",
						"minimum":     0,
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of rows",
						"default":     100,
					},
				},
				"required": []string{"index"},
			},
		},
		{
			Name:        "parking_statistics_history",
			Description: "List recorded lot statistics snapshots, newest first. Requires a history database.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of rows",
						"default":     100,
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
