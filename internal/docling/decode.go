package docling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument marks structural failures: the input cannot be decoded into a
// document tree, so no partial output can be produced.
var ErrMalformedDocument = errors.New("malformed document")

// Decode parses a conversion result envelope.
func Decode(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate checks that the envelope carries a structural tree.
func (r *Response) Validate() error {
	if r.Document == nil {
		return fmt.Errorf("%w: missing document", ErrMalformedDocument)
	}
	if r.Document.JSONContent == nil {
		return fmt.Errorf("%w: missing json_content", ErrMalformedDocument)
	}
	return nil
}
