package providers

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantOK  bool
	}{
		{"bare object", `{"title":"a","description":"b"}`, `{"title":"a","description":"b"}`, true},
		{"surrounding prose", "Sure! Here it is:\n{\"title\":\"a\"}\nHope that helps.", `{"title":"a"}`, true},
		{"code fence", "```json\n{\"title\":\"a\"}\n```", `{"title":"a"}`, true},
		{"nested", `x {"a":{"b":1}} y {"c":2}`, `{"a":{"b":1}}`, true},
		{"brace in string", `{"title":"curly } brace","description":"{"}`, `{"title":"curly } brace","description":"{"}`, true},
		{"escaped quote", `{"title":"say \"}\" ok"}`, `{"title":"say \"}\" ok"}`, true},
		{"unbalanced then balanced", `{ oops {"title":"x"}`, `{"title":"x"}`, true},
		{"no object", "I cannot describe this image.", "", false},
		{"unterminated", `{"title":"x"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ExtractJSONObject() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDescription(t *testing.T) {
	t.Run("prose wrapped", func(t *testing.T) {
		d, err := ParseDescription(`The answer: {"title": "Bar Chart", "description": "Sales by quarter.", "confidence": 0.9} done`)
		if err != nil {
			t.Fatalf("ParseDescription() error = %v", err)
		}
		if d.Title != "Bar Chart" || d.Description != "Sales by quarter." {
			t.Errorf("unexpected description: %+v", d)
		}
	})

	t.Run("strips markup", func(t *testing.T) {
		d, err := ParseDescription(`{"title": "<b>Logo</b>", "description": "A <i>red</i> &amp; white mark."}`)
		if err != nil {
			t.Fatalf("ParseDescription() error = %v", err)
		}
		if d.Title != "Logo" {
			t.Errorf("Title = %q, want Logo", d.Title)
		}
		if d.Description != "A red & white mark." {
			t.Errorf("Description = %q", d.Description)
		}
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ParseDescription("no json here")
		if !errors.Is(err, ErrNoStructuredOutput) {
			t.Errorf("ParseDescription() error = %v, want ErrNoStructuredOutput", err)
		}
	})

	t.Run("schema mismatch", func(t *testing.T) {
		if _, err := ParseDescription(`{"title": "only title"}`); err == nil {
			t.Error("expected error for missing description")
		}
		if _, err := ParseDescription(`{"title": 3, "description": "x"}`); err == nil {
			t.Error("expected error for non-string title")
		}
	})
}

func TestParseDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	mime, data, err := ParseDataURI("data:image/jpeg;base64," + payload)
	if err != nil {
		t.Fatalf("ParseDataURI() error = %v", err)
	}
	if mime != "image/jpeg" || string(data) != "png-bytes" {
		t.Errorf("ParseDataURI() = %q, %q", mime, data)
	}

	invalid := []string{
		"https://example.com/a.png",
		"data:image/png," + payload,
		"data:image/png;base64,!!!not-base64",
		"data:image/png;base64",
	}
	for _, uri := range invalid {
		if _, _, err := ParseDataURI(uri); !errors.Is(err, ErrInvalidDataURI) {
			t.Errorf("ParseDataURI(%q) error = %v, want ErrInvalidDataURI", uri, err)
		}
	}
}
