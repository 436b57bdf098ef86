package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedPayload is returned when the inference output is not a
	// single JSON object matching the expected schema.
	ErrMalformedPayload = errors.New("malformed analysis payload")

	// ErrEmptyPayload is returned when the inference call returned nothing.
	ErrEmptyPayload = errors.New("empty analysis payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeStrict parses raw into dst rejecting unknown fields, trailing data
// and any validation tag violation. Missing fields are never filled in.
func decodeStrict(raw []byte, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}

	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
