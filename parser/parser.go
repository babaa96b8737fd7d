package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReportResponse is the thinking tier's answer to a report prompt
type ReportResponse struct {
	Summary       string   `json:"summary"`
	SeverityScore Int      `json:"severity_score"`
	Actions       []string `json:"actions"`
}

// SceneResponse is the thinking tier's answer to a scene classification prompt.
// Optional fields are nil when the model left them out.
type SceneResponse struct {
	Classification string `json:"classification"`
	PeopleCount    *Int   `json:"people_count"`
	Summary        string `json:"summary"`
	SeverityScore  *Int   `json:"severity_score"`
}

// Int accepts JSON numbers, numeric strings and floats (rounded), since models are loose with number formatting
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", string(data))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid integer %s", string(data))
	}
	*i = Int(math.Round(f))
	return nil
}

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks
func ExtractJSONFromMarkdown(response string) string {
	// Look for JSON code blocks with ``` markers
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 || endIdx < startIdx {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		// unterminated fence, drop the opening marker and keep the rest
		return stripLanguageTag(response[startIdx+len(startMarker):])
	}
	endIdx += startIdx + len(startMarker)

	// Extract content between the markers
	content := response[startIdx+len(startMarker) : endIdx]

	return stripLanguageTag(content)
}

// stripLanguageTag removes a "json" language identifier following an opening fence,
// whether the payload starts on the next line or on the same one
func stripLanguageTag(content string) string {
	content = strings.TrimSpace(content)
	if len(content) >= 4 && strings.EqualFold(content[:4], "json") {
		content = content[4:]
	}
	return strings.TrimSpace(content)
}

// ParseReport parses a severity report answer
func ParseReport(response string) (*ReportResponse, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var result ReportResponse
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	result.Summary = strings.TrimSpace(result.Summary)
	if result.Summary == "" {
		return nil, errors.New("summary is required")
	}
	if result.SeverityScore < 1 || result.SeverityScore > 10 {
		return nil, fmt.Errorf("severity_score must be between 1 and 10, got %d", result.SeverityScore)
	}

	actions := make([]string, 0, len(result.Actions))
	for _, a := range result.Actions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		return nil, errors.New("at least one action is required")
	}
	result.Actions = actions

	return &result, nil
}

// ParseScene parses a scene classification answer. Value coercion is left to the caller.
func ParseScene(response string) (*SceneResponse, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var result SceneResponse
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}
	result.Summary = strings.TrimSpace(result.Summary)

	return &result, nil
}
