package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"parking_status",
		"parking_spots",
		"parking_spot",
		"parking_statistics",
		"parking_submit_frame",
		"parking_annotated_frame",
		"parking_extract_spots",
		"parking_spot_history",
		"parking_statistics_history",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(tools))
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("duplicate tool name %q", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %q not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema == nil {
				t.Fatal("Tool InputSchema is nil")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"].(map[string]interface{}); !ok {
				t.Error("InputSchema properties should be a map")
			}
		})
	}
}

func TestToolDefinitions_Required(t *testing.T) {
	tests := []struct {
		tool     string
		required []string
	}{
		{"parking_spot", []string{"index"}},
		{"parking_submit_frame", []string{"path"}},
		{"parking_extract_spots", []string{"path"}},
		{"parking_spot_history", []string{"index"}},
		{"parking_status", nil},
		{"parking_statistics_history", nil},
	}

	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			tool, ok := toolMap[tt.tool]
			if !ok {
				t.Fatalf("tool %q not defined", tt.tool)
			}
			got, _ := tool.InputSchema["required"].([]string)
			if len(got) != len(tt.required) {
				t.Fatalf("required = %v, want %v", got, tt.required)
			}
			props := tool.InputSchema["properties"].(map[string]interface{})
			for i, name := range tt.required {
				if got[i] != name {
					t.Errorf("required[%d] = %q, want %q", i, got[i], name)
				}
				if _, ok := props[name]; !ok {
					t.Errorf("required argument %q has no property schema", name)
				}
			}
		})
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: "list-1"})

	if resp.ID != "list-1" {
		t.Errorf("ID: got %v, want list-1", resp.ID)
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if _, ok := result["tools"].([]Tool); !ok {
		t.Error("tools should be a []Tool")
	}
}
