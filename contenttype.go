package diskkit

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// Extensions whose registered type differs between platforms' mime tables.
var extensionToMIME = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".zip":  "application/zip",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".py":   "text/x-python; charset=utf-8",
	".go":   "text/x-go; charset=utf-8",
}

// DetectContentType guesses the MIME type of a file from its extension,
// then from the first bytes of its content. It never returns "".
func DetectContentType(filePath string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return defaultContentType
}
