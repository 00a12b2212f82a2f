package extraction

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
	mimeODT  = "application/vnd.oasis.opendocument.text"
	mimeRTF  = "application/rtf"
	mimeHTML = "text/html"
	mimeText = "text/plain"
)

// TextConverter turns a downloaded document into plain text
type TextConverter interface {
	Convert(doc *Document) (string, error)
}

// DocconvConverter converts PDF (text layer), Word, ODT and RTF documents with docconv.
// HTML and plain text are handled in-process.
type DocconvConverter struct{}

// NewDocconvConverter creates a converter
func NewDocconvConverter() *DocconvConverter {
	return &DocconvConverter{}
}

// Convert detects the document type and returns its text
func (c *DocconvConverter) Convert(doc *Document) (string, error) {
	mimeType := DetectMimeType(doc)

	switch mimeType {
	case mimeText:
		if !utf8.Valid(doc.Data) {
			return "", fmt.Errorf("%w: plain text is not valid UTF-8", ErrUnsupportedDocument)
		}
		return cleanExtractedText(string(doc.Data)), nil
	case mimeHTML:
		return htmlToText(doc.Data)
	case mimePDF, mimeDOCX, mimeDOC, mimeODT, mimeRTF:
		res, err := docconv.Convert(bytes.NewReader(doc.Data), mimeType, false)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", mimeType, err)
		}
		return cleanExtractedText(res.Body), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, mimeType)
	}
}

// DetectMimeType picks the document type from, in order, the file signature, the
// declared Content-Type and the file extension. Signatures win because file hosts
// routinely serve documents as application/octet-stream.
func DetectMimeType(doc *Document) string {
	data := doc.Data

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return mimePDF
	case bytes.HasPrefix(data, []byte("{\\rtf")):
		return mimeRTF
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		return mimeDOC
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		// zip container: decide between DOCX and ODT by name or declared type
		if declared := declaredType(doc); declared == mimeODT {
			return mimeODT
		}
		return mimeDOCX
	}

	if declared := declaredType(doc); declared != "" && declared != "application/octet-stream" {
		return declared
	}

	if byExt := docconv.MimeTypeByExtension(doc.Filename); byExt != "" && byExt != "application/octet-stream" {
		return normaliseMime(byExt)
	}

	if utf8.Valid(data) {
		head := strings.ToLower(string(data[:min(len(data), 512)]))
		if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") {
			return mimeHTML
		}
		return mimeText
	}

	return "application/octet-stream"
}

func declaredType(doc *Document) string {
	if doc.ContentType != "" {
		if mediaType, _, err := mime.ParseMediaType(doc.ContentType); err == nil {
			return normaliseMime(mediaType)
		}
	}
	if ext := strings.ToLower(filepath.Ext(doc.Filename)); ext == ".odt" {
		return mimeODT
	}
	return ""
}

func normaliseMime(m string) string {
	switch m {
	case "text/rtf":
		return mimeRTF
	case "application/xhtml+xml":
		return mimeHTML
	}
	return m
}

var _ TextConverter = (*DocconvConverter)(nil)
