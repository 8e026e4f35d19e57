package assets

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxExtractedChars bounds the text kept from a text-like upload.
const MaxExtractedChars = 200000

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".log": true, ".html": true, ".htm": true, ".css": true,
	".js": true, ".ts": true, ".tsx": true, ".jsx": true, ".go": true,
	".py": true, ".rb": true, ".rs": true, ".java": true, ".c": true,
	".h": true, ".cpp": true, ".sh": true, ".sql": true,
}

// IsTextLike reports whether a file should have its text extracted.
func IsTextLike(filename, mimeType string) bool {
	if textExtensions[strings.ToLower(filepath.Ext(filename))] {
		return true
	}
	return strings.HasPrefix(mimeType, "text/") || mimeType == "application/json" || mimeType == "application/xml"
}

// ExtractText returns up to MaxExtractedChars characters of a text-like
// file. Non text-like files and read failures yield "".
func ExtractText(filename, mimeType string, r io.Reader) string {
	if !IsTextLike(filename, mimeType) {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return truncateText(data)
}

// truncateText decodes data as UTF-8, replacing invalid sequences with
// U+FFFD, and keeps the first MaxExtractedChars runes.
func truncateText(data []byte) string {
	var b strings.Builder
	n := 0
	for len(data) > 0 && n < MaxExtractedChars {
		r, size := utf8.DecodeRune(data)
		b.WriteRune(r)
		data = data[size:]
		n++
	}
	return b.String()
}

// FormatSize renders a byte count for display.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

var icons = map[string]string{
	".pdf":  "📕",
	".doc":  "📘",
	".docx": "📘",
	".xls":  "📗",
	".xlsx": "📗",
	".csv":  "📊",
	".ppt":  "📙",
	".pptx": "📙",
	".png":  "🖼️",
	".jpg":  "🖼️",
	".jpeg": "🖼️",
	".gif":  "🖼️",
	".svg":  "🖼️",
	".webp": "🖼️",
	".zip":  "🗜️",
	".mp3":  "🎵",
	".wav":  "🎵",
	".mp4":  "🎬",
	".mov":  "🎬",
	".md":   "📝",
	".txt":  "📝",
	".json": "🧾",
	".go":   "💻",
	".py":   "💻",
	".js":   "💻",
	".ts":   "💻",
}

// IconFor returns a display glyph for a file name.
func IconFor(filename string) string {
	if g, ok := icons[strings.ToLower(filepath.Ext(filename))]; ok {
		return g
	}
	return "📄"
}
