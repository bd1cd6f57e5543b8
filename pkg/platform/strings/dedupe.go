// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// NormalizeCode trims whitespace and upper-cases an identifier or country code.
func NormalizeCode(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// NormalizeLabel trims whitespace and lower-cases a label such as a source name.
func NormalizeLabel(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// DedupeCodes normalizes each element with NormalizeCode, dropping empties
// and duplicates. Order of first occurrence is preserved.
//
// Example:
//
//	DedupeCodes([]string{" bmu", "CYM", "bmu", ""})
//	// Returns: []string{"BMU", "CYM"}
func DedupeCodes(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		code := NormalizeCode(v)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			result = append(result, code)
		}
	}

	return result
}

// DedupeAndTrimLower trims, lowercases and dedupes labels such as source names.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  BVD ", "ciq", "Bvd"})
//	// Returns: []string{"bvd", "ciq"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := NormalizeLabel(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
