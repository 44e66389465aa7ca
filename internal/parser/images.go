package parser

import (
	"encoding/base64"
	"strings"
)

// dataURIImage extracts the base64 payload of a data:image/...;base64 URI.
func dataURIImage(src string) (string, bool) {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(strings.ToLower(src), "data:image/") {
		return "", false
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 || !strings.HasSuffix(strings.ToLower(src[:comma]), ";base64") {
		return "", false
	}
	payload := src[comma+1:]
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", false
	}
	return payload, true
}
