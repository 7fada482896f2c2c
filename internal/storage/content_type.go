package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Try to detect from file extension using mime.TypeByExtension
// 3. Sniff content from the first 512 bytes of data (if available)
// 4. Fall back to "application/octet-stream"
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		// http.DetectContentType wants at most 512 bytes
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// =============================================================================
// Content Type Validation
// =============================================================================

// AllowedAudioTypes defines the MIME types accepted for feedback audio
// uploads. Covers what the common browser and mobile recorders emit.
var AllowedAudioTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true, // Non-standard but common
	"audio/mp4":   true,
	"audio/m4a":   true,
	"audio/x-m4a": true, // iOS voice memos
	"audio/aac":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/webm":  true, // MediaRecorder default in Chrome
	"audio/ogg":   true,
	"audio/flac":  true,
}

// IsAllowedAudioType checks if a content type is an accepted audio format
// for feedback uploads.
func IsAllowedAudioType(contentType string) bool {
	return AllowedAudioTypes[normalizeContentType(contentType)]
}

// IsAudio returns true if the content type is any audio format.
func IsAudio(contentType string) bool {
	return strings.HasPrefix(normalizeContentType(contentType), "audio/")
}

// normalizeContentType strips parameters (like codecs) and lowercases the
// base type.
func normalizeContentType(contentType string) string {
	baseType := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(baseType))
}

// =============================================================================
// File Extension Helpers
// =============================================================================

// extensionForContentType returns a common file extension for a MIME type.
// Used when generating storage keys from content types.
func extensionForContentType(contentType string) string {
	extensions := map[string]string{
		"audio/mpeg":  ".mp3",
		"audio/mp3":   ".mp3",
		"audio/mp4":   ".m4a",
		"audio/m4a":   ".m4a",
		"audio/x-m4a": ".m4a",
		"audio/aac":   ".aac",
		"audio/wav":   ".wav",
		"audio/x-wav": ".wav",
		"audio/webm":  ".webm",
		"audio/ogg":   ".ogg",
		"audio/flac":  ".flac",
	}

	baseType := normalizeContentType(contentType)
	if ext, ok := extensions[baseType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}

	return ".bin"
}
