package parser

import (
	"reflect"
	"testing"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *ReportResponse
	}{
		{
			name:     "valid JSON response",
			response: `{"summary": "Active wildfire near residential area.", "severity_score": 8, "actions": ["Evacuate", "Dispatch fire crews", "Close roads"]}`,
			expected: &ReportResponse{
				Summary:       "Active wildfire near residential area.",
				SeverityScore: 8,
				Actions:       []string{"Evacuate", "Dispatch fire crews", "Close roads"},
			},
		},
		{
			name: "JSON in markdown fence",
			response: "```json\n" +
				`{"summary": "Street flooding.", "severity_score": 5, "actions": ["Monitor water levels"]}` +
				"\n```",
			expected: &ReportResponse{
				Summary:       "Street flooding.",
				SeverityScore: 5,
				Actions:       []string{"Monitor water levels"},
			},
		},
		{
			name:     "fence with tag on the payload line",
			response: "```json " + `{"summary": "Street flooding.", "severity_score": 5, "actions": ["Monitor water levels"]}` + "```",
			expected: &ReportResponse{
				Summary:       "Street flooding.",
				SeverityScore: 5,
				Actions:       []string{"Monitor water levels"},
			},
		},
		{
			name:     "severity as string and float",
			response: `{"summary": "Collapsed building.", "severity_score": "9.2", "actions": ["Search and rescue", " "]}`,
			expected: &ReportResponse{
				Summary:       "Collapsed building.",
				SeverityScore: 9,
				Actions:       []string{"Search and rescue"},
			},
		},
		{
			name:     "JSON surrounded by prose",
			response: `Here is the report: {"summary": "Smoke visible.", "severity_score": 3, "actions": ["Verify"]} Stay safe.`,
			expected: &ReportResponse{
				Summary:       "Smoke visible.",
				SeverityScore: 3,
				Actions:       []string{"Verify"},
			},
		},
		{
			name:     "severity out of range",
			response: `{"summary": "x", "severity_score": 11, "actions": ["a"]}`,
			wantErr:  true,
		},
		{
			name:     "severity zero",
			response: `{"summary": "x", "severity_score": 0, "actions": ["a"]}`,
			wantErr:  true,
		},
		{
			name:     "missing summary",
			response: `{"severity_score": 4, "actions": ["a"]}`,
			wantErr:  true,
		},
		{
			name:     "no actions",
			response: `{"summary": "x", "severity_score": 4, "actions": []}`,
			wantErr:  true,
		},
		{
			name:     "not JSON",
			response: "I cannot help with that.",
			wantErr:  true,
		},
		{
			name:     "non numeric severity",
			response: `{"summary": "x", "severity_score": "high", "actions": ["a"]}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseReport(tt.response)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseReport() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseReport() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestParseScene(t *testing.T) {
	intPtr := func(i int) *Int {
		v := Int(i)
		return &v
	}

	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *SceneResponse
	}{
		{
			name:     "full answer",
			response: `{"classification": "Flood", "people_count": 3, "summary": "Flooded street.", "severity_score": 6}`,
			expected: &SceneResponse{
				Classification: "Flood",
				PeopleCount:    intPtr(3),
				Summary:        "Flooded street.",
				SeverityScore:  intPtr(6),
			},
		},
		{
			name:     "optional fields missing",
			response: "```\n{\"classification\": \"Normal\"}\n```",
			expected: &SceneResponse{Classification: "Normal"},
		},
		{
			name:     "null counts",
			response: `{"classification": "Earthquake", "people_count": null, "severity_score": null}`,
			expected: &SceneResponse{Classification: "Earthquake"},
		},
		{
			name:     "invalid JSON",
			response: `{"classification": `,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseScene(tt.response)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseScene() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseScene() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Result:\n```json\n{\"a\":1}\n```\nDone", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"no json", "hello", "hello"},
		{"tag on payload line", "```json {\"a\":1}```", `{"a":1}`},
		{"tag glued to payload", "```json{\"a\":1}```", `{"a":1}`},
		{"upper case tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONFromMarkdown(tt.input); got != tt.expected {
				t.Errorf("ExtractJSONFromMarkdown() = %q, want %q", got, tt.expected)
			}
		})
	}
}
