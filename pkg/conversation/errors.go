package conversation

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnsupportedType    = errors.New("unsupported attachment type")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrHistoryCleared     = errors.New("session history was cleared")
)
