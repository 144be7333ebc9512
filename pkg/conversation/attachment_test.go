package conversation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAttachmentFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	content := []byte("%PDF-1.4 fake document")
	require.NoError(t, os.WriteFile(path, content, 0644))

	attachment, err := NewAttachmentFromFile(path)
	require.NoError(t, err)
	require.Equal(t, MimeTypePDF, attachment.MimeType)
	require.Equal(t, content, attachment.Payload)
}

func TestNewAttachmentFromFile_RejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))

	_, err := NewAttachmentFromFile(path)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewAttachmentFromFile_MissingFile(t *testing.T) {
	_, err := NewAttachmentFromFile(filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
}

func TestAttachment_Base64RoundTrip(t *testing.T) {
	attachment := Attachment{MimeType: MimeTypePDF, Payload: []byte("%PDF-1.4")}
	encoded := attachment.EncodeBase64()

	decoded, err := DecodeBase64Attachment(MimeTypePDF, encoded)
	require.NoError(t, err)
	require.Equal(t, attachment.Payload, decoded.Payload)
	require.Equal(t, MimeTypePDF, decoded.MimeType)
}

func TestDecodeBase64Attachment_Rejects(t *testing.T) {
	_, err := DecodeBase64Attachment("text/plain", "aGVsbG8=")
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = DecodeBase64Attachment(MimeTypePDF, "not base64!!!")
	require.Error(t, err)
}
