package export

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 50

// SanitizeFilename creates a safe download name from a title
func SanitizeFilename(title string) string {
	var result strings.Builder
	for _, r := range norm.NFC.String(title) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			result.WriteRune(r)
		case r == ' ':
			result.WriteByte('-')
		case r == '-', r == '_':
			result.WriteRune(r)
		}
	}

	out := []rune(result.String())
	if len(out) > maxFilenameLength {
		out = out[:maxFilenameLength]
	}
	if len(out) == 0 {
		return "document"
	}
	return string(out)
}

// BlobName derives the storage name for a generated document: whitespace runs in
// the title become underscores and the creation time in unix milliseconds is
// appended. Path separators are dropped.
func BlobName(title string, at time.Time) string {
	title = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		return r
	}, norm.NFC.String(strings.TrimSpace(title)))
	base := strings.Join(strings.Fields(title), "_")
	if base == "" {
		base = "document"
	}
	return base + "_" + strconv.FormatInt(at.UnixMilli(), 10) + ".docx"
}
