package crawler

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeBody converts a response body to a string.
// Valid UTF-8 is used as is; anything else is decoded as ISO-8859-1,
// which maps every byte to a code point and therefore cannot fail on
// well-formed input.
func DecodeBody(body []byte) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode body as latin-1: %w", err)
	}
	return string(decoded), nil
}
