package server

import (
	"testing"
)

func toolMap(t *testing.T) map[string]Tool {
	t.Helper()
	m := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		m[tool.Name] = tool
	}
	return m
}

func TestGetToolDefinitions(t *testing.T) {
	tools := toolMap(t)

	expectedTools := []string{
		ToolData,
		ToolProcess,
		ToolExport,
		ToolMap,
		ToolSystem,
		ToolClassification,
		ToolModels,
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(tools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok || len(props) == 0 {
				t.Fatal("InputSchema properties missing")
			}

			// Every required field must be declared.
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required field %q has no property", r)
				}
			}
		})
	}
}

func TestToolDefinitions_OperationEnums(t *testing.T) {
	tools := toolMap(t)

	tests := []struct {
		tool  string
		field string
		want  []string
	}{
		{ToolData, "operation", dataOperations},
		{ToolProcess, "operation", processOperations},
		{ToolExport, "operation", exportOperations},
		{ToolMap, "operation", mapOperations},
		{ToolSystem, "operation", systemOperations},
		{ToolModels, "model", models},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			props := tools[tt.tool].InputSchema["properties"].(map[string]interface{})
			field, ok := props[tt.field].(map[string]interface{})
			if !ok {
				t.Fatalf("%s has no %s property", tt.tool, tt.field)
			}
			enum, ok := field["enum"].([]string)
			if !ok {
				t.Fatalf("%s.%s enum should be a string slice", tt.tool, tt.field)
			}
			if len(enum) != len(tt.want) {
				t.Fatalf("%s.%s enum: got %v, want %v", tt.tool, tt.field, enum, tt.want)
			}
			for i := range enum {
				if enum[i] != tt.want[i] {
					t.Errorf("%s.%s enum[%d]: got %s, want %s", tt.tool, tt.field, i, enum[i], tt.want[i])
				}
			}

			required, _ := tools[tt.tool].InputSchema["required"].([]string)
			found := false
			for _, r := range required {
				if r == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("%s should require %s", tt.tool, tt.field)
			}
		})
	}
}

func TestToolDefinitions_ClassificationRequired(t *testing.T) {
	tool := toolMap(t)[ToolClassification]

	required, ok := tool.InputSchema["required"].([]string)
	if !ok {
		t.Fatal("required should be a string slice")
	}
	expected := map[string]bool{
		"region":         true,
		"startDate":      true,
		"endDate":        true,
		"trainingPoints": true,
	}
	for _, r := range required {
		delete(expected, r)
	}
	for missing := range expected {
		t.Errorf("crop_classification should require '%s'", missing)
	}
}

func TestToolDefinitions_ExportFamilyEnum(t *testing.T) {
	props := toolMap(t)[ToolExport].InputSchema["properties"].(map[string]interface{})
	family, ok := props["family"].(map[string]interface{})
	if !ok {
		t.Fatal("earth_engine_export has no family property")
	}
	enum, ok := family["enum"].([]string)
	if !ok || len(enum) == 0 {
		t.Fatal("family should enumerate the visualization families")
	}
	hasIndex := false
	for _, f := range enum {
		if f == "index" {
			hasIndex = true
		}
	}
	if !hasIndex {
		t.Errorf("family enum %v lacks index", enum)
	}
}
