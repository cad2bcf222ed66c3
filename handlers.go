package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quirze62/nodus/internal/client"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// publishStatus maps a publish outcome to an HTTP response.
func publishStatus(w http.ResponseWriter, result *client.PublishResult, err error) {
	switch {
	case errors.Is(err, client.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, client.ErrNoWriteRelays):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil && result != nil:
		// Signed and sent but no relay accepted
		writeJSON(w, http.StatusBadGateway, result)
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"pubkey":      s.client.PublicKey(),
		"connections": s.client.ActiveConnections(),
	})
}

// parseTimelineOptions maps query parameters onto timeline options.
func parseTimelineOptions(query url.Values) (client.TimelineOptions, error) {
	opts := client.TimelineOptions{Limit: 20}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			return opts, errors.New("limit must be 1-100")
		}
		opts.Limit = limit
	}
	if v := query.Get("authors"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			pk, err := nostr.ParsePublicKey(strings.TrimSpace(raw))
			if err != nil {
				return opts, errors.New("invalid author pubkey")
			}
			opts.Authors = append(opts.Authors, pk)
		}
	}
	if v := query.Get("until"); v != "" {
		until, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, errors.New("invalid until timestamp")
		}
		opts.Until = &until
	}
	opts.FollowsOnly = query.Get("follows") == "true"
	// Replies are hidden unless explicitly asked for
	opts.SkipReplies = query.Get("replies") != "true"

	return opts, nil
}

func (s *apiServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	opts, err := parseTimelineOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notes, err := s.client.Timeline(r.Context(), opts)
	if err != nil {
		LoggerFromContext(r.Context()).Error("timeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "timeline unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (s *apiServer) handleThread(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	if len(eventID) != 64 {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	thread, err := s.client.ThreadFor(r.Context(), eventID)
	if errors.Is(err, client.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "thread unavailable")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *apiServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	pubkey, err := nostr.ParsePublicKey(chi.URLParam(r, "pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pubkey")
		return
	}

	profile := s.client.Profile(r.Context(), pubkey)
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *apiServer) handleContacts(w http.ResponseWriter, r *http.Request) {
	pubkey, err := nostr.ParsePublicKey(chi.URLParam(r, "pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pubkey")
		return
	}

	contacts := s.client.ContactList(r.Context(), pubkey)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pubkey":   pubkey,
		"contacts": contacts,
	})
}

func (s *apiServer) handleConversation(w http.ResponseWriter, r *http.Request) {
	messages, err := s.client.Conversation(r.Context(), chi.URLParam(r, "pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *apiServer) handleGetRelays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"read":    s.client.ReadRelays(),
		"write":   s.client.WriteRelays(),
		"indexer": s.client.IndexerRelays(),
		"status":  s.client.RelayStatuses(),
	})
}

func (s *apiServer) handlePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.PostNote(r.Context(), req.Content)
	publishStatus(w, result, err)
}

func (s *apiServer) handleReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID string `json:"parent_id"`
		Content  string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Reply(r.Context(), req.ParentID, req.Content)
	publishStatus(w, result, err)
}

func (s *apiServer) handleReact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.React(r.Context(), req.EventID, req.Content)
	publishStatus(w, result, err)
}

func (s *apiServer) handleRepost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Repost(r.Context(), req.EventID)
	publishStatus(w, result, err)
}

func (s *apiServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Quote(r.Context(), req.EventID, req.Content)
	publishStatus(w, result, err)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventIDs []string `json:"event_ids"`
		Reason   string   `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Delete(r.Context(), req.EventIDs, req.Reason)
	publishStatus(w, result, err)
}

func (s *apiServer) handleSendDM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey  string `json:"pubkey"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.SendDirectMessage(r.Context(), req.Pubkey, req.Content)
	publishStatus(w, result, err)
}

func (s *apiServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req types.ProfileInfo
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.UpdateProfile(r.Context(), &req)
	publishStatus(w, result, err)
}

func (s *apiServer) handleFollow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Follow(r.Context(), req.Pubkey)
	publishStatus(w, result, err)
}

func (s *apiServer) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.client.Unfollow(r.Context(), req.Pubkey)
	publishStatus(w, result, err)
}

func (s *apiServer) handleAddRelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Read    bool   `json:"read"`
		Write   bool   `json:"write"`
		Publish bool   `json:"publish"` // also publish the updated relay list
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.client.AddRelay(req.URL, req.Read, req.Write); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Publish {
		result, err := s.client.PublishRelayList(r.Context())
		publishStatus(w, result, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *apiServer) handleRemoveRelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Publish bool   `json:"publish"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.client.RemoveRelay(req.URL)

	if req.Publish {
		result, err := s.client.PublishRelayList(r.Context())
		publishStatus(w, result, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
