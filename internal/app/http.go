package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forum/api/internal/access"
	"forum/api/internal/auth"
	"forum/api/internal/store"
	"forum/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		var body RegisterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Register(r.Context(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		session := Session{}
		if token := bearerToken(r); token != "" {
			session, _ = s.service.SessionFromToken(r.Context(), token)
		}
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"username":      session.Username,
			"userId":        session.UserID,
			"isAdmin":       session.IsAdmin,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "search":
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}
		resp, err := s.service.SearchForum(r.Context(), caller, r.URL.Query().Get("q"), limit, offset)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	case "categories":
		s.handleCategories(w, r, parts[2:])
		return
	case "topics":
		s.handleTopics(w, r, parts[2:])
		return
	case "replies":
		s.handleReplies(w, r, parts[2:])
		return
	case "users":
		s.handleUsers(w, r, parts[2:])
		return
	case "messages":
		s.handleMessages(w, r, parts[2:])
		return
	case "conversations":
		if r.Method == http.MethodGet && len(parts) == 2 {
			session, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			items, err := s.service.ListConversations(r.Context(), session.Caller(), r.URL.Query().Get("order") == "desc")
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCategories(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}
		query := r.URL.Query()
		items, err := s.service.ListCategories(r.Context(), caller, store.CategoryFilter{
			Search: query.Get("search"),
			SortBy: query.Get("sort_by"),
			Desc:   query.Get("order") == "desc",
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": items})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body CreateCategoryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		category, err := s.service.CreateCategory(r.Context(), session.Caller(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, category)
		return
	}

	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	categoryID, err := parseID(rest[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "category id must be an integer", nil)
		return
	}

	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		detail, err := s.service.GetCategory(r.Context(), caller, categoryID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return

	case len(rest) == 2 && rest[1] == "lock" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Locked bool `json:"locked"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.SetCategoryLocked(r.Context(), session.Caller(), categoryID, body.Locked)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case len(rest) == 2 && rest[1] == "privacy" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Private bool `json:"private"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.SetCategoryPrivate(r.Context(), session.Caller(), categoryID, body.Private)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case len(rest) == 2 && rest[1] == "access" && r.Method == http.MethodGet:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		grants, err := s.service.ListCategoryAccess(r.Context(), session.Caller(), categoryID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
		return

	case len(rest) == 2 && rest[1] == "access" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body GrantAccessInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.GrantCategoryAccess(r.Context(), session.Caller(), categoryID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case len(rest) == 3 && rest[1] == "access" && r.Method == http.MethodDelete:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		userID, err := parseID(rest[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "user id must be an integer", nil)
			return
		}
		outcome, err := s.service.RevokeCategoryAccess(r.Context(), session.Caller(), categoryID, userID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTopics(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}
		query := r.URL.Query()
		filter := store.TopicFilter{
			Search: query.Get("search"),
			Desc:   query.Get("order") == "desc",
			Limit:  limit,
			Offset: offset,
		}
		if raw := query.Get("category_id"); raw != "" {
			id, err := parseID(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_ID", "category_id must be an integer", nil)
				return
			}
			filter.CategoryID = &id
		}
		if raw := query.Get("author_id"); raw != "" {
			id, err := parseID(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_ID", "author_id must be an integer", nil)
				return
			}
			filter.AuthorID = &id
		}
		items, err := s.service.ListTopics(r.Context(), caller, filter)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"topics": items})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body CreateTopicInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		topic, err := s.service.CreateTopic(r.Context(), session.Caller(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, topic)
		return
	}

	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	topicID, err := parseID(rest[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "topic id must be an integer", nil)
		return
	}

	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		detail, err := s.service.GetTopic(r.Context(), caller, topicID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return

	case len(rest) == 2 && rest[1] == "lock" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Locked bool `json:"locked"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.SetTopicLocked(r.Context(), session.Caller(), topicID, body.Locked)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case len(rest) == 2 && rest[1] == "best-reply" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			ReplyID int64 `json:"replyId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.SelectBestReply(r.Context(), session.Caller(), topicID, body.ReplyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReplies(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodPost {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body CreateReplyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reply, err := s.service.CreateReply(r.Context(), session.Caller(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
		return
	}

	if len(rest) < 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	replyID, err := parseID(rest[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "reply id must be an integer", nil)
		return
	}

	switch {
	case rest[1] == "vote" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Upvote bool `json:"upvote"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.CastVote(r.Context(), session.Caller(), replyID, body.Upvote)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case rest[1] == "vote" && r.Method == http.MethodDelete:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		outcome, err := s.service.RetractVote(r.Context(), session.Caller(), replyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return

	case rest[1] == "votes" && r.Method == http.MethodGet:
		caller, ok := s.optionalCaller(w, r)
		if !ok {
			return
		}
		score, err := s.service.ReplyVoteScore(r.Context(), caller, replyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"score": score})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	userID, err := parseID(rest[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "user id must be an integer", nil)
		return
	}

	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		profile, err := s.service.GetUser(r.Context(), userID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
		return

	case len(rest) == 2 && rest[1] == "admin" && r.Method == http.MethodPut:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			IsAdmin bool `json:"isAdmin"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.SetAdminStatus(r.Context(), session.Caller(), userID, body.IsAdmin)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			ReceiverID int64  `json:"receiverId"`
			Text       string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		message, err := s.service.SendMessage(r.Context(), session.Caller(), body.ReceiverID, body.Text)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, message)
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		peerID, err := parseID(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "user id must be an integer", nil)
			return
		}
		items, err := s.service.ListMessages(r.Context(), session.Caller(), peerID, r.URL.Query().Get("order") == "desc")
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": items})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeMappedError(w, err)
		return Session{}, false
	}
	return session, true
}

// optionalCaller resolves the bearer token when present. A missing token is
// an anonymous caller, not an error; a malformed one is still rejected.
func (s *HTTPServer) optionalCaller(w http.ResponseWriter, r *http.Request) (*access.Caller, bool) {
	token := bearerToken(r)
	if token == "" {
		return nil, true
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeMappedError(w, err)
		return nil, false
	}
	return session.Caller(), true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.RandomHex(8)
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, strings.ToUpper(domainErr.Code), domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	limit = 10
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"isAdmin":      session.IsAdmin,
		"expiresAt":    session.ExpiresAt,
	}
}
