package api

import (
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

//go:embed templates/verify.html
var verifyFS embed.FS

var verifyTmpl = template.Must(template.ParseFS(verifyFS, "templates/verify.html"))

// apiKeyLifetime is how long a key issued by device login stays valid.
const apiKeyLifetime = 365 * 24 * time.Hour

type verifyPageData struct {
	Error   string
	Success bool
	Code    string
}

type loginStartRequest struct {
	Email string `json:"email"`
}

type loginStartResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type loginPollRequest struct {
	DeviceCode string `json:"device_code"`
}

type loginPollResponse struct {
	Status    string  `json:"status"`
	APIKey    *string `json:"api_key,omitempty"`
	UserID    *string `json:"user_id,omitempty"`
	Email     *string `json:"email,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// handleLoginStart handles POST /v1/auth/login/start.
func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "valid email is required")
		return
	}

	if !s.config.AllowSignup {
		user, err := s.store.GetUserByEmail(req.Email)
		if err != nil {
			logFor(r.Context()).Error("check user for login", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to check user")
			return
		}
		if user == nil {
			writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "signups are disabled")
			return
		}
	}

	ar, err := s.store.CreateAuthRequest(req.Email, s.config.LoginTTL)
	if err != nil {
		logFor(r.Context()).Error("create auth request", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create auth request")
		return
	}

	s.logAuthEvent(r, ar.ID, ar.Email, serverdb.AuthEventStarted, nil)

	writeJSON(w, http.StatusOK, loginStartResponse{
		DeviceCode:      ar.DeviceCode,
		UserCode:        ar.UserCode,
		VerificationURI: s.config.BaseURL + "/auth/verify",
		ExpiresIn:       int(ar.ExpiresAt.Sub(ar.CreatedAt).Seconds()),
		Interval:        serverdb.PollInterval,
	})
}

// handleLoginPoll handles POST /v1/auth/login/poll. A verified request is
// exchanged for a new API key exactly once.
func (s *Server) handleLoginPoll(w http.ResponseWriter, r *http.Request) {
	var req loginPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceCode == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_code is required")
		return
	}

	ar, err := s.store.GetAuthRequestByDeviceCode(req.DeviceCode)
	if err != nil {
		logFor(r.Context()).Error("get auth request", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get auth request")
		return
	}
	if ar == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "auth request not found")
		return
	}

	switch {
	case ar.Status == serverdb.AuthStatusUsed:
		writeError(w, http.StatusGone, ErrCodeAlreadyUsed, "auth request already used")
		return
	case ar.Status == serverdb.AuthStatusExpired, ar.ExpiresAt.Before(time.Now().UTC()):
		writeError(w, http.StatusGone, ErrCodeExpired, "auth request has expired")
		return
	case ar.Status == serverdb.AuthStatusPending:
		writeJSON(w, http.StatusOK, loginPollResponse{Status: serverdb.AuthStatusPending})
		return
	}

	completed, err := s.store.CompleteAuthRequest(ar.DeviceCode)
	if err != nil {
		logFor(r.Context()).Error("complete auth request", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to complete auth request")
		return
	}
	if completed == nil || completed.UserID == nil {
		// Lost a race with a concurrent poll
		writeError(w, http.StatusGone, ErrCodeAlreadyUsed, "auth request already used")
		return
	}

	expiry := time.Now().UTC().Add(apiKeyLifetime)
	plaintext, ak, err := s.store.GenerateAPIKey(*completed.UserID, "device-login", &expiry)
	if err != nil {
		logFor(r.Context()).Error("generate api key for device login", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to generate api key")
		return
	}
	if err := s.store.SetAuthRequestAPIKey(completed.ID, ak.ID); err != nil {
		logFor(r.Context()).Warn("set auth request api key", "err", err)
	}

	s.logAuthEvent(r, completed.ID, completed.Email, serverdb.AuthEventKeyIssued, map[string]string{"key_id": ak.ID})
	logFor(r.Context()).Info("device login complete", "user_id", *completed.UserID)

	expiresAt := expiry.Format(time.RFC3339)
	writeJSON(w, http.StatusOK, loginPollResponse{
		Status:    "complete",
		APIKey:    &plaintext,
		UserID:    completed.UserID,
		Email:     &completed.Email,
		ExpiresAt: &expiresAt,
	})
}

// handleVerifyPage handles GET /auth/verify. A ?code= parameter pre-fills
// the form.
func (s *Server) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	s.renderVerify(w, r, verifyPageData{Code: normalizeUserCode(r.URL.Query().Get("code"))})
}

// handleVerifySubmit handles POST /auth/verify.
func (s *Server) handleVerifySubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderVerify(w, r, verifyPageData{Error: "Invalid form data."})
		return
	}

	userCode := normalizeUserCode(r.FormValue("user_code"))
	if userCode == "" {
		s.renderVerify(w, r, verifyPageData{Error: "Please enter a code."})
		return
	}
	if len(userCode) != 6 || !isValidUserCode(userCode) {
		s.renderVerify(w, r, verifyPageData{Error: "Invalid or expired code.", Code: userCode})
		return
	}

	ar, err := s.store.GetAuthRequestByUserCode(userCode)
	if err != nil {
		logFor(r.Context()).Error("get auth request by user code", "err", err)
		s.renderVerify(w, r, verifyPageData{Error: "Something went wrong. Please try again."})
		return
	}
	if ar == nil {
		logFor(r.Context()).Warn("verify failed", "reason", "invalid_or_expired")
		s.logAuthEvent(r, "", "", serverdb.AuthEventFailed, map[string]string{"failure_reason": "invalid_code"})
		s.renderVerify(w, r, verifyPageData{Error: "Invalid or expired code.", Code: userCode})
		return
	}

	user, err := s.store.GetUserByEmail(ar.Email)
	if err != nil {
		logFor(r.Context()).Error("get user by email", "err", err)
		s.renderVerify(w, r, verifyPageData{Error: "Something went wrong. Please try again."})
		return
	}
	if user == nil {
		if !s.config.AllowSignup {
			logFor(r.Context()).Warn("signup denied", "email", ar.Email)
			s.logAuthEvent(r, ar.ID, ar.Email, serverdb.AuthEventFailed, map[string]string{"failure_reason": "signup_disabled"})
			s.renderVerify(w, r, verifyPageData{Error: "Signups are disabled."})
			return
		}
		user, err = s.store.CreateUser(ar.Email)
		if err != nil {
			logFor(r.Context()).Error("create user during verify", "err", err)
			s.renderVerify(w, r, verifyPageData{Error: "Failed to create account. Please try again."})
			return
		}
	}

	if err := s.store.VerifyAuthRequest(userCode, user.ID); err != nil {
		logFor(r.Context()).Error("verify auth request", "err", err)
		s.renderVerify(w, r, verifyPageData{Error: "Failed to authorize device. Code may have expired."})
		return
	}
	if err := s.store.SetEmailVerified(user.ID); err != nil {
		logFor(r.Context()).Warn("mark email verified", "err", err)
	}

	s.logAuthEvent(r, ar.ID, ar.Email, serverdb.AuthEventCodeVerified, nil)
	logFor(r.Context()).Info("device verified", "email", ar.Email)
	s.renderVerify(w, r, verifyPageData{Success: true})
}

func (s *Server) renderVerify(w http.ResponseWriter, r *http.Request, data verifyPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := verifyTmpl.Execute(w, data); err != nil {
		logFor(r.Context()).Error("render verify page", "err", err)
	}
}

// logAuthEvent records an auth event with the caller's IP and user agent.
// Failures are logged and otherwise ignored.
func (s *Server) logAuthEvent(r *http.Request, authRequestID, email, eventType string, meta map[string]string) {
	if meta == nil {
		meta = map[string]string{}
	}
	if r != nil {
		meta["ip"] = clientIP(r)
		meta["user_agent"] = r.Header.Get("User-Agent")
	}
	metadata := "{}"
	if b, err := json.Marshal(meta); err == nil {
		metadata = string(b)
	}
	if err := s.store.InsertAuthEvent(authRequestID, email, eventType, metadata); err != nil {
		logger := slog.Default()
		if r != nil {
			logger = logFor(r.Context())
		}
		logger.Warn("log auth event", "type", eventType, "err", err)
	}
}

func normalizeUserCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(code, "-", "")))
}

// isValidUserCode checks that every character is in the user code charset.
func isValidUserCode(code string) bool {
	const validChars = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	for _, c := range code {
		if !strings.ContainsRune(validChars, c) {
			return false
		}
	}
	return true
}
