package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SVGMediaType is the media type used for embedded logos.
const SVGMediaType = "image/svg+xml"

const base64Marker = ";base64,"

var (
	// ErrMalformed is returned for strings that are not base64 data URIs.
	ErrMalformed = errors.New("malformed data URI")
	// ErrMediaType is returned when a data URI holds an unexpected media type.
	ErrMediaType = errors.New("unexpected data URI media type")
)

// Encode builds a base64 data URI for data with the given media type.
func Encode(mediaType string, data []byte) string {
	return "data:" + mediaType + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// EncodeSVG builds the data:image/svg+xml;base64 URI for an SVG document.
func EncodeSVG(data []byte) string {
	return Encode(SVGMediaType, data)
}

// Decode splits a base64 data URI into its media type and payload.
func Decode(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformed
	}
	mediaType, payload, ok := strings.Cut(rest, base64Marker)
	if !ok {
		return "", nil, ErrMalformed
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return mediaType, data, nil
}

// DecodeSVG decodes uri and requires the SVG media type.
func DecodeSVG(uri string) ([]byte, error) {
	mediaType, data, err := Decode(uri)
	if err != nil {
		return nil, err
	}
	if mediaType != SVGMediaType {
		return nil, fmt.Errorf("%w: %q", ErrMediaType, mediaType)
	}
	return data, nil
}
