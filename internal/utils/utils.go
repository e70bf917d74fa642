package utils

import (
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N} ._()\[\]-]+`)

// SanitizeFileName strips path separators and shell-hostile characters from a user supplied file name.
func SanitizeFileName(name string) string {
	cleaned := unsafeFileChars.ReplaceAllString(name, "_")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, ".")
	return cleaned
}

// SplitList splits comma separated values from one or more query parameters, dropping blanks.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
