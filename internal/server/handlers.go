package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/monitor"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
)

// maxCachedFrames bounds the decoded frames kept by the image cache.
const maxCachedFrames = 16

// errMissingIndex is returned when a spot tool is called without an index.
var errMissingIndex = errors.New("missing required argument: index")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "parking_status", "parking_spot").
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
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		s.log.Debugf("tool %s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

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
//
// Tools without parameters ignore args entirely, so clients may send null or
// omit arguments for them.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Lot State
	case "parking_status":
		return s.handleStatus(ctx), nil
	case "parking_spots":
		return s.mon.Snapshot(), nil
	case "parking_spot":
		return s.handleSpot(args)
	case "parking_statistics":
		return s.mon.Statistics(), nil

	// Frames
	case "parking_submit_frame":
		return s.handleSubmitFrame(ctx, args)
	case "parking_annotated_frame":
		return s.handleAnnotatedFrame(args)
	case "parking_extract_spots":
		return s.handleExtractSpots(args)

	// History
	case "parking_spot_history":
		return s.handleSpotHistory(ctx, args)
	case "parking_statistics_history":
		return s.handleStatisticsHistory(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes args into v, treating absent arguments as an empty object.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	return json.Unmarshal(args, v)
}

// === Lot State Handlers ===

type spotArgs struct {
	Index *int `json:"index"`
}

func (s *Server) handleSpot(args json.RawMessage) (interface{}, error) {
	var a spotArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return nil, errMissingIndex
	}
	return s.mon.Spot(*a.Index)
}

// === Frame Handlers ===

type submitFrameArgs struct {
	Path string `json:"path"`
}

// submitFrameResult is the frame outcome plus the lot state it produced.
type submitFrameResult struct {
	*occupancy.FrameResult
	Failures   []string             `json:"failures,omitempty"`
	Statistics occupancy.Statistics `json:"statistics"`
}

func (s *Server) handleSubmitFrame(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a submitFrameArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("missing required argument: path")
	}
	if s.cache.Len() >= maxCachedFrames {
		s.cache.Clear()
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	res, err := s.mon.Submit(ctx, img)
	if err != nil {
		return nil, err
	}
	out := submitFrameResult{FrameResult: res, Statistics: s.mon.Statistics()}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	return out, nil
}

type annotatedFrameArgs struct {
	OutputPath string `json:"output_path"`
}

// savedImage reports where an annotated frame was written.
type savedImage struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleAnnotatedFrame(args json.RawMessage) (interface{}, error) {
	var a annotatedFrameArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.mon.Annotated()
	if err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return imaging.EncodePNGBase64(img)
	}
	if err := imaging.Save(img, a.OutputPath); err != nil {
		return nil, err
	}
	return savedImage{Path: a.OutputPath, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}, nil
}

type extractSpotsArgs struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

// extractSpotsResult lists the spots found in a mask.
type extractSpotsResult struct {
	Count int              `json:"count"`
	Spots []detection.Spot `json:"spots"`
}

func (s *Server) handleExtractSpots(args json.RawMessage) (interface{}, error) {
	var a extractSpotsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	spots, err := detection.ExtractFile(a.Path, a.Scale)
	if err != nil {
		return nil, err
	}
	return extractSpotsResult{Count: len(spots), Spots: spots}, nil
}

// === History Handlers ===

type spotHistoryArgs struct {
	Index *int `json:"index"`
	Limit int  `json:"limit"`
}

func (s *Server) handleSpotHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a spotHistoryArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Index == nil {
		return nil, errMissingIndex
	}
	return s.mon.SpotHistory(ctx, *a.Index, a.Limit)
}

type statisticsHistoryArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleStatisticsHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a statisticsHistoryArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	return s.mon.StatisticsHistory(ctx, a.Limit)
}

// handleStatus adds the stored run record to the monitor status when a store
// is configured.
func (s *Server) handleStatus(ctx context.Context) monitor.Status {
	st := s.mon.Status()
	run, err := s.mon.RunRecord(ctx)
	switch {
	case err == nil:
		st.Run = &run
	case !errors.Is(err, monitor.ErrNoStore):
		s.log.Warnf("loading run %s: %v", st.RunID, err)
	}
	return st
}
