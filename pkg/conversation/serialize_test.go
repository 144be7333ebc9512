package conversation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewStore()
	a := s.CreateSession("")
	b := s.CreateSession("Work notes")
	_, err := s.AppendMessage(a, RoleUser, "Hello")
	require.NoError(t, err)
	_, err = s.AppendMessage(a, RoleAssistant, `I received your message: "Hello"`)
	require.NoError(t, err)
	require.NoError(t, s.Attach(b, Attachment{MimeType: MimeTypePDF, Payload: []byte("%PDF-1.4")}))
	require.NoError(t, s.SelectSession(a))

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, s.SaveToFile(path))

	loaded, err := LoadStoreFromFile(path)
	require.NoError(t, err)

	summaries := loaded.ListSessions()
	require.Len(t, summaries, 2)
	require.Equal(t, a, summaries[0].ID)
	require.Equal(t, "Chat 1", summaries[0].Name)
	require.Equal(t, 2, summaries[0].Messages)
	require.Equal(t, "Work notes", summaries[1].Name)
	require.True(t, summaries[1].HasAttachment)

	active, ok := loaded.ActiveSession()
	require.True(t, ok)
	require.Equal(t, a, active)

	messages, err := loaded.Messages(a)
	require.NoError(t, err)
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, "Hello", messages[0].Text)
	require.Equal(t, RoleAssistant, messages[1].Role)

	attachment, err := loaded.CurrentAttachment(b)
	require.NoError(t, err)
	require.NotNil(t, attachment)
	require.Equal(t, []byte("%PDF-1.4"), attachment.Payload)

	// identifier issuance resumes past restored IDs
	c := loaded.CreateSession("")
	require.Greater(t, int64(c), int64(b))
	msg, err := loaded.AppendMessage(c, RoleUser, "new")
	require.NoError(t, err)
	for _, old := range messages {
		require.NotEqual(t, old.ID, msg.ID)
	}
}

func TestNewStoreFromSnapshot_EmptySnapshot(t *testing.T) {
	loaded, err := NewStoreFromSnapshot(StoreSnapshot{})
	require.NoError(t, err)
	require.Empty(t, loaded.ListSessions())
	_, ok := loaded.ActiveSession()
	require.False(t, ok)
}
