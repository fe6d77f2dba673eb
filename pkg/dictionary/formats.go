package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// FileFormat represents the dictionary file formats
type FileFormat int

const (
	FormatUnknown FileFormat = iota
	FormatChunk              // Chunked binary tokens
	FormatSource             // Tab separated token source
	FormatMatrix             // Connection cost matrix text
)

// FormatInfo contains metadata about a dictionary file format
type FormatInfo struct {
	Format      FileFormat
	Description string
	Extensions  []string
	MinSize     int64 // Minimum expected file size in bytes
}

var supportedFormats = map[FileFormat]FormatInfo{
	FormatChunk: {
		Format:      FormatChunk,
		Description: "Chunked Binary Dictionary",
		Extensions:  []string{".bin"},
		MinSize:     4, // token count header
	},
	FormatSource: {
		Format:      FormatSource,
		Description: "Dictionary Source",
		Extensions:  []string{".tsv", ".txt"},
		MinSize:     1,
	},
	FormatMatrix: {
		Format:      FormatMatrix,
		Description: "Connection Matrix",
		Extensions:  []string{".def", ".txt"},
		MinSize:     3, // "1 1"
	},
}

// maxChunkTokens is a sanity bound on a chunk header.
const maxChunkTokens = 1 << 22

// ValidateFileFormat checks if a file matches the expected format
func ValidateFileFormat(filename string, expectedFormat FileFormat) error {
	fileInfo, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	formatInfo, exists := supportedFormats[expectedFormat]
	if !exists {
		return fmt.Errorf("unknown format: %v", expectedFormat)
	}

	if fileInfo.Size() < formatInfo.MinSize {
		return fmt.Errorf("file %s is too small (%d bytes) for format %s (minimum: %d bytes)",
			filename, fileInfo.Size(), formatInfo.Description, formatInfo.MinSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	validExt := false
	for _, validExtension := range formatInfo.Extensions {
		if ext == validExtension {
			validExt = true
			break
		}
	}
	if !validExt {
		return fmt.Errorf("file %s has invalid extension %s for format %s (expected: %v)",
			filename, ext, formatInfo.Description, formatInfo.Extensions)
	}

	switch expectedFormat {
	case FormatChunk:
		return validateChunkFormat(filename)
	case FormatSource:
		return validateTextFormat(filename, 5)
	case FormatMatrix:
		return validateTextFormat(filename, 1)
	}
	return nil
}

func validateChunkFormat(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	var count int32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("failed to read header from %s: %w", filename, err)
	}
	if count < 0 {
		return fmt.Errorf("invalid token count in %s: %d (negative)", filename, count)
	}
	if count > maxChunkTokens {
		return fmt.Errorf("suspicious token count in %s: %d (too large)", filename, count)
	}
	log.Debugf("Chunk file %s validated: %d tokens", filename, count)
	return nil
}

// validateTextFormat checks that the first data line has at least minFields
// whitespace or tab separated fields.
func validateTextFormat(filename string, minFields int) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == '\t' || r == ' ' })
		if len(fields) < minFields {
			return fmt.Errorf("file %s: first line has %d fields, want at least %d", filename, len(fields), minFields)
		}
		log.Debugf("Text file %s validated", filename)
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read from text file %s: %w", filename, err)
	}
	return fmt.Errorf("file %s has no data lines", filename)
}

// DetectFileFormat attempts to detect the format of a file
func DetectFileFormat(filename string) (FileFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	basename := strings.ToLower(filepath.Base(filename))

	if strings.HasPrefix(basename, "dict_") && ext == ".bin" {
		if err := ValidateFileFormat(filename, FormatChunk); err == nil {
			return FormatChunk, nil
		}
	}
	if strings.HasPrefix(basename, "matrix") {
		if err := ValidateFileFormat(filename, FormatMatrix); err == nil {
			return FormatMatrix, nil
		}
	}
	if ext == ".tsv" || ext == ".txt" {
		if err := ValidateFileFormat(filename, FormatSource); err == nil {
			return FormatSource, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unable to detect format for file %s", filename)
}

// GetFormatInfo returns information about a specific format
func GetFormatInfo(format FileFormat) (FormatInfo, bool) {
	info, exists := supportedFormats[format]
	return info, exists
}
