package providers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DescriptionSchema is the strict output schema sent to backends that support
// structured output.
var DescriptionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "A descriptive title for the image",
		},
		"description": map[string]any{
			"type":        "string",
			"description": "A detailed description of the image's content",
		},
	},
	"required":             []string{"title", "description"},
	"additionalProperties": false,
}

// Free-form models often add keys of their own, so local validation only
// insists on the two fields we read.
const descriptionValidationSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"description": {"type": "string"}
	},
	"required": ["title", "description"]
}`

var compileDescriptionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("description.json", strings.NewReader(descriptionValidationSchema)); err != nil {
		return nil, fmt.Errorf("failed to load description schema: %w", err)
	}
	schema, err := compiler.Compile("description.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile description schema: %w", err)
	}
	return schema, nil
})

var stripMarkup = bluemonday.StrictPolicy()

// ParseDescription extracts the first balanced JSON object from model output and
// decodes it as a Description. A response without any object yields ErrNoStructuredOutput.
func ParseDescription(content string) (*Description, error) {
	candidate, ok := ExtractJSONObject(content)
	if !ok {
		return nil, ErrNoStructuredOutput
	}
	if err := validateStructuredJSON([]byte(candidate)); err != nil {
		return nil, err
	}

	var d Description
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		return nil, fmt.Errorf("failed to decode structured output: %w", err)
	}
	d.Clean()
	return &d, nil
}

// ExtractJSONObject returns the first balanced {...} span in content.
// Braces inside JSON strings do not count toward the balance.
func ExtractJSONObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	for start >= 0 {
		if end := matchBrace(content, start); end > start {
			return content[start : end+1], true
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// validateStructuredJSON validates parsed JSON against the description schema.
func validateStructuredJSON(parsed []byte) error {
	schema, err := compileDescriptionSchema()
	if err != nil {
		return err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(parsed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// Clean strips markup a model may have echoed into the fields.
func (d *Description) Clean() {
	d.Title = cleanText(d.Title)
	d.Description = cleanText(d.Description)
}

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripMarkup.Sanitize(s)))
}

// ParseDataURI splits a base64 data URI into its MIME type and payload.
func ParseDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return "", nil, fmt.Errorf("%w: missing data: header", ErrInvalidDataURI)
	}
	meta := strings.TrimPrefix(header, "data:")
	mimeType, params, _ := strings.Cut(meta, ";")
	if !strings.Contains(params, "base64") {
		return "", nil, fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURI)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mimeType, data, nil
}
