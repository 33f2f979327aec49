package domain

import (
	"path/filepath"
	"strings"
)

// FileFormat is the closed set of parsing strategies for an uploaded file.
type FileFormat int

const (
	// FormatCSV is parsed locally, line by line.
	FormatCSV FileFormat = iota
	// FormatPDF is delegated to the remote document-extraction service.
	FormatPDF
	// FormatSpreadsheet (.xlsx/.xls) is delegated to the remote service.
	FormatSpreadsheet
	// FormatUnknown falls back to remote extraction as a catch-all.
	FormatUnknown
)

func (f FileFormat) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatPDF:
		return "pdf"
	case FormatSpreadsheet:
		return "spreadsheet"
	default:
		return "unknown"
	}
}

// DetectFormat selects exactly one parsing strategy from the declared
// content type and filename. Pure selection: CSV signature wins, then PDF,
// then spreadsheet; anything else is Unknown (remote catch-all).
func DetectFormat(contentType, fileName string) FileFormat {
	ct := strings.ToLower(contentType)
	name := strings.ToLower(fileName)

	switch {
	case strings.Contains(ct, "csv") || strings.HasSuffix(name, ".csv"):
		return FormatCSV
	case strings.Contains(ct, "pdf") || strings.HasSuffix(name, ".pdf"):
		return FormatPDF
	case strings.Contains(ct, "spreadsheet") || strings.Contains(ct, "ms-excel") ||
		strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls"):
		return FormatSpreadsheet
	default:
		return FormatUnknown
	}
}

// allowedExtensions is the upload allow-list, enforced before any parsing.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
	".pdf":  true,
}

// ExtensionAllowed reports whether the file's extension may be uploaded.
func ExtensionAllowed(fileName string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(fileName))]
}
