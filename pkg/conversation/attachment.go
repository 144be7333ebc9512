package conversation

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const MimeTypePDF = "application/pdf"

// MaxAttachmentSize bounds the payload a session will accept.
const MaxAttachmentSize = 20 * 1024 * 1024

// Attachment is a single document bound to a session. A session holds at
// most one; attaching a new document replaces the prior one.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Payload  []byte `json:"payload"`
}

// IsSupportedMimeType reports whether mimeType is an accepted document type.
func IsSupportedMimeType(mimeType string) bool {
	return mimeType == MimeTypePDF
}

func (a Attachment) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(a.Payload)
}

func DecodeBase64Attachment(mimeType string, payload string) (Attachment, error) {
	if !IsSupportedMimeType(mimeType) {
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to decode payload: %v", err)
	}
	return Attachment{MimeType: mimeType, Payload: b}, nil
}

// NewAttachmentFromFile turns a user-selected file into an Attachment.
// File reading is a collaborator concern; the store only ever sees the
// resulting {mimeType, payload} pair.
func NewAttachmentFromFile(path string) (Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to open file: %v", err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	fileInfo, err := file.Stat()
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to get file info: %v", err)
	}

	if fileInfo.Size() > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, fileInfo.Size())
	}

	mimeType := getMimeTypeFromExtension(filepath.Ext(path))
	if !IsSupportedMimeType(mimeType) {
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read file content: %v", err)
	}

	return Attachment{
		MimeType: mimeType,
		Payload:  content,
	}, nil
}

func getMimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return MimeTypePDF
	default:
		return ""
	}
}
