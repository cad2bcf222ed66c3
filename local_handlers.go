package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quirze62/nodus/internal/storage"
)

// Handlers for the local application store. These never touch relays
// and are the data source the UI reads while relay queries settle.

func (s *apiServer) handleLocalListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": s.store.ListUsers()})
}

func (s *apiServer) handleLocalCreateUser(w http.ResponseWriter, r *http.Request) {
	var user storage.User
	if !decodeBody(w, r, &user) {
		return
	}

	created, err := s.store.CreateUser(&user)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleLocalGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleLocalUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		About   string `json:"about"`
		Picture string `json:"picture"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.store.UpdateUser(chi.URLParam(r, "id"), req.Name, req.About, req.Picture)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleLocalDeleteUser(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteUser(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *apiServer) handleLocalListNotes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	notes := s.store.ListNotes(r.URL.Query().Get("pubkey"), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (s *apiServer) handleLocalSaveNote(w http.ResponseWriter, r *http.Request) {
	var note storage.Note
	if !decodeBody(w, r, &note) {
		return
	}

	saved, err := s.store.SaveNote(&note)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *apiServer) handleLocalGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.store.GetNote(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *apiServer) handleLocalDeleteNote(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteNote(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *apiServer) handleLocalListMessages(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, "both a and b pubkeys are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": s.store.ListMessages(a, b)})
}

func (s *apiServer) handleLocalListFollows(w http.ResponseWriter, r *http.Request) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pubkey":  pubkey,
		"follows": s.store.Follows(pubkey),
	})
}

func (s *apiServer) handleLocalFollow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Follower string `json:"follower"`
		Followee string `json:"followee"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Follower == "" || req.Followee == "" {
		writeError(w, http.StatusBadRequest, "follower and followee are required")
		return
	}

	s.store.Follow(req.Follower, req.Followee)
	writeJSON(w, http.StatusOK, map[string]string{"status": "following"})
}

func (s *apiServer) handleLocalUnfollow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Follower string `json:"follower"`
		Followee string `json:"followee"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Follower == "" || req.Followee == "" {
		writeError(w, http.StatusBadRequest, "follower and followee are required")
		return
	}

	s.store.Unfollow(req.Follower, req.Followee)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unfollowed"})
}

func (s *apiServer) handleLocalSaveMessage(w http.ResponseWriter, r *http.Request) {
	var msg storage.Message
	if !decodeBody(w, r, &msg) {
		return
	}

	saved, err := s.store.SaveMessage(&msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}
