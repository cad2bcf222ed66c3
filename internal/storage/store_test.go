package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	store := NewStore()

	created, err := store.CreateUser(&User{Pubkey: "pk1", Name: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetUser(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	byPubkey, err := store.GetUserByPubkey("pk1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byPubkey.ID)

	updated, err := store.UpdateUser(created.ID, "alice2", "", "https://pic.example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Name)
	assert.Equal(t, "https://pic.example.com", updated.Picture)

	require.NoError(t, store.DeleteUser(created.ID))
	_, err = store.GetUser(created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserRejectsDuplicatePubkey(t *testing.T) {
	store := NewStore()

	_, err := store.CreateUser(&User{Pubkey: "pk1"})
	require.NoError(t, err)

	_, err = store.CreateUser(&User{Pubkey: "pk1"})
	assert.Error(t, err)

	_, err = store.CreateUser(&User{})
	assert.Error(t, err)
}

func TestListUsersSortedByCreation(t *testing.T) {
	store := NewStore()

	first, err := store.CreateUser(&User{Pubkey: "pk1", CreatedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	second, err := store.CreateUser(&User{Pubkey: "pk2"})
	require.NoError(t, err)

	users := store.ListUsers()
	require.Len(t, users, 2)
	assert.Equal(t, first.ID, users[0].ID)
	assert.Equal(t, second.ID, users[1].ID)
}

func TestNoteLifecycle(t *testing.T) {
	store := NewStore()

	saved, err := store.SaveNote(&Note{Pubkey: "pk1", Content: "a note"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := store.GetNote(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "a note", got.Content)

	require.NoError(t, store.DeleteNote(saved.ID))
	_, err = store.GetNote(saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.SaveNote(&Note{Pubkey: "pk1"})
	assert.Error(t, err)
}

func TestListNotesFiltersAndLimits(t *testing.T) {
	store := NewStore()

	for i := 0; i < 5; i++ {
		_, err := store.SaveNote(&Note{
			Pubkey:    "alice",
			Content:   "note",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := store.SaveNote(&Note{Pubkey: "bob", Content: "other"})
	require.NoError(t, err)

	aliceNotes := store.ListNotes("alice", 3)
	assert.Len(t, aliceNotes, 3)
	for _, note := range aliceNotes {
		assert.Equal(t, "alice", note.Pubkey)
	}

	// Newest first
	all := store.ListNotes("", 0)
	assert.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func TestMessageConversation(t *testing.T) {
	store := NewStore()

	_, err := store.SaveMessage(&Message{From: "alice", To: "bob", Content: "hi", CreatedAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	_, err = store.SaveMessage(&Message{From: "bob", To: "alice", Content: "hey"})
	require.NoError(t, err)
	_, err = store.SaveMessage(&Message{From: "alice", To: "carol", Content: "unrelated"})
	require.NoError(t, err)

	conv := store.ListMessages("alice", "bob")
	require.Len(t, conv, 2)
	// Oldest first, both directions included
	assert.Equal(t, "hi", conv[0].Content)
	assert.Equal(t, "hey", conv[1].Content)

	_, err = store.SaveMessage(&Message{From: "alice"})
	assert.Error(t, err)
}

func TestFollowGraph(t *testing.T) {
	store := NewStore()

	store.Follow("alice", "bob")
	store.Follow("alice", "carol")
	store.Follow("alice", "bob") // idempotent

	assert.Equal(t, []string{"bob", "carol"}, store.Follows("alice"))
	assert.Empty(t, store.Follows("bob"))

	store.Unfollow("alice", "bob")
	assert.Equal(t, []string{"carol"}, store.Follows("alice"))

	// Unfollowing an absent edge is a no-op
	store.Unfollow("dave", "bob")
}
