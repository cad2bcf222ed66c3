// Package storage provides the local application store: an in-memory
// mirror of users, notes, messages and follows that survives relay
// outages and serves instant reads while relay queries are in flight.
package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// User is a locally known account.
type User struct {
	ID        string    `json:"id"`
	Pubkey    string    `json:"pubkey"`
	Name      string    `json:"name"`
	About     string    `json:"about,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a locally stored post, either authored here or mirrored from
// relays.
type Note struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id,omitempty"`
	Pubkey    string    `json:"pubkey"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a locally stored direct message, decrypted.
type Message struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds all local records behind one lock. Writes are rare
// compared to reads, so a single RWMutex is enough.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*User
	notes    map[string]*Note
	messages map[string]*Message
	follows  map[string]map[string]bool // follower pubkey -> followed pubkeys
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*User),
		notes:    make(map[string]*Note),
		messages: make(map[string]*Message),
		follows:  make(map[string]map[string]bool),
	}
}

// CreateUser adds a user. The ID is assigned when empty.
func (s *Store) CreateUser(user *User) (*User, error) {
	if user.Pubkey == "" {
		return nil, errors.New("user pubkey is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Pubkey == user.Pubkey {
			return nil, errors.New("user already exists for pubkey")
		}
	}

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.users[stored.ID] = &stored

	out := stored
	return &out, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

// GetUserByPubkey returns a user by pubkey.
func (s *Store) GetUserByPubkey(pubkey string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Pubkey == pubkey {
			out := *user
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser overwrites the mutable fields of a user.
func (s *Store) UpdateUser(id string, name, about, picture string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if name != "" {
		user.Name = name
	}
	if about != "" {
		user.About = about
	}
	if picture != "" {
		user.Picture = picture
	}
	out := *user
	return &out, nil
}

// DeleteUser removes a user and their follow edges.
func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	delete(s.follows, user.Pubkey)
	for _, followed := range s.follows {
		delete(followed, user.Pubkey)
	}
	return nil
}

// ListUsers returns all users sorted by creation time.
func (s *Store) ListUsers() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		out := *user
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

// SaveNote stores a note, assigning an ID when empty.
func (s *Store) SaveNote(note *Note) (*Note, error) {
	if note.Pubkey == "" || note.Content == "" {
		return nil, errors.New("note pubkey and content are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *note
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.notes[stored.ID] = &stored

	out := stored
	return &out, nil
}

// GetNote returns a note by ID.
func (s *Store) GetNote(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *note
	return &out, nil
}

// DeleteNote removes a note.
func (s *Store) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// ListNotes returns notes, newest first, optionally filtered by author.
func (s *Store) ListNotes(pubkey string, limit int) []*Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]*Note, 0, len(s.notes))
	for _, note := range s.notes {
		if pubkey != "" && note.Pubkey != pubkey {
			continue
		}
		out := *note
		notes = append(notes, &out)
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes
}

// SaveMessage stores a direct message.
func (s *Store) SaveMessage(msg *Message) (*Message, error) {
	if msg.From == "" || msg.To == "" {
		return nil, errors.New("message from and to are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.messages[stored.ID] = &stored

	out := stored
	return &out, nil
}

// ListMessages returns the conversation between two pubkeys, oldest first.
func (s *Store) ListMessages(a, b string) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []*Message
	for _, msg := range s.messages {
		if (msg.From == a && msg.To == b) || (msg.From == b && msg.To == a) {
			out := *msg
			messages = append(messages, &out)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}

// Follow records that follower follows followed.
func (s *Store) Follow(follower, followed string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.follows[follower] == nil {
		s.follows[follower] = make(map[string]bool)
	}
	s.follows[follower][followed] = true
}

// Unfollow removes a follow edge.
func (s *Store) Unfollow(follower, followed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[follower], followed)
}

// Follows returns who a pubkey follows, sorted.
func (s *Store) Follows(follower string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	follows := make([]string, 0, len(s.follows[follower]))
	for pk := range s.follows[follower] {
		follows = append(follows, pk)
	}
	sort.Strings(follows)
	return follows
}
