// Package strings holds small slice helpers shared by the role and permission code.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrimLower trims, lower-cases and deduplicates values, dropping
// empty entries. Order of first occurrence is preserved.
//
//	DedupeAndTrimLower([]string{"  Admin ", "user", "ADMIN", ""})
//	// []string{"admin", "user"}
func DedupeAndTrimLower(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

// AppendUnique appends each value not already present in dst.
func AppendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
