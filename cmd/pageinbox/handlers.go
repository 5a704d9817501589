package main

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/models"
	"pageinbox/internal/privacy"
	"pageinbox/internal/service"
	"pageinbox/internal/tracing"
	"pageinbox/internal/validation"
)

type threadsRequest struct {
	Search string `json:"search"`
	Page   int    `json:"page"`
}

type messagesRequest struct {
	Page int `json:"page"`
}

type replyRequest struct {
	Reply string `json:"reply"`
}

type connectRequest struct {
	Code string `json:"code"`
}

type accountsResponse struct {
	Accounts []*models.Account `json:"accounts"`
}

type connectResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err by kind and answers with the failure envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	appErr, ok := errors.As(err)
	if ok {
		errors.WithContextFromRequest(appErr, r.Context())
	}
	s.errLogger.LogByKind(err, "Request failed", logrus.Fields{
		service.LogFieldRequestID:  tracing.GetRequestID(r.Context()),
		service.LogFieldRoute:      r.URL.Path,
		service.LogFieldStatusCode: status,
	})

	envelope := errors.ToEnvelope(err)
	if !ok || appErr.UserMessage == "" {
		envelope.Message = s.tr.T(i18n.KeyInternalError)
	}
	writeJSON(w, status, envelope)
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst
// at its zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxBodyBytes))
	err := json.NewDecoder(r.Body).Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, stderrors.Is(err, io.EOF):
		return nil
	case stderrors.As(err, &tooLarge):
		return errors.RequestTooLarge(tooLarge.Limit, s.tr.T(i18n.KeyInvalidPayload))
	default:
		return errors.Validation("body", s.tr.T(i18n.KeyInvalidPayload))
	}
}

func userID(r *http.Request) string {
	id, _ := errors.UserIDFromContext(r.Context())
	return id
}

// handleWebhookVerify answers the subscription handshake by echoing
// hub.challenge when the verify token matches.
func (s *Server) handleWebhookVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode := q.Get("hub.mode")
		token := q.Get("hub.verify_token")

		if mode != "subscribe" || s.cfg.Graph.VerifyToken == "" || token != s.cfg.Graph.VerifyToken {
			s.logger.WithField("mode", mode).Warn("Webhook verification failed")
			writeJSON(w, http.StatusForbidden, errors.Envelope{Success: false, Message: s.tr.T(i18n.KeyVerificationFailed)})
			return
		}

		s.logger.Info("Webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
	}
}

// handleWebhook accepts a Messenger delivery. Once the payload validates the
// answer is always 200; per-event failures are only logged.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBody := int64(s.cfg.Server.MaxBodyBytes)
		if err := validation.ValidateHTTPRequestSize(r, maxBody, s.tr.T(i18n.KeyInvalidPayload)); err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		body, err := verifySignature(r, s.cfg.Graph.AppSecret)
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, r, errors.RequestTooLarge(tooLarge.Limit, s.tr.T(i18n.KeyInvalidPayload)))
			return
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			}).WithError(err).Warn("Webhook signature rejected")
			writeJSON(w, http.StatusUnauthorized, errors.Envelope{Success: false, Message: s.tr.T(i18n.KeyInvalidSignature)})
			return
		}

		payload, err := s.webhooks.Decode(body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		result := s.svc.Ingest.Ingest(r.Context(), payload)
		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			"stored":                  result.Stored,
			"ignored":                 result.Ignored,
			"failed":                  result.Failed,
			"threads_created":         result.ThreadsCreated,
		}).Debug("Webhook processed")

		writeJSON(w, http.StatusOK, errors.Envelope{Success: true, Message: s.tr.T(i18n.KeyOK)})
	}
}

func (s *Server) handleListThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req threadsRequest
		if err := s.decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		page, err := s.svc.Inbox.ListThreads(r.Context(), userID(r), req.Search, req.Page)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		if err := s.decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		page, err := s.svc.Inbox.ListMessages(r.Context(), userID(r), mux.Vars(r)["threadId"], req.Page)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleReply() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replyRequest
		if err := s.decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		threadID := mux.Vars(r)["threadId"]
		if _, err := s.svc.Replies.SendReply(r.Context(), userID(r), threadID, req.Reply); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.WithFields(logrus.Fields{
			service.LogFieldThreadID: threadID,
			service.LogFieldBody:     privacy.PreviewBody(req.Reply),
		}).Debug("Reply accepted")
		writeJSON(w, http.StatusOK, errors.Envelope{Success: true, Message: s.tr.T(i18n.KeyReplyCreated)})
	}
}

func (s *Server) handleListAccounts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.svc.Accounts.ListAccounts(r.Context(), userID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, accountsResponse{Accounts: accounts})
	}
}

func (s *Server) handleConnectAccounts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := s.decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		count, err := s.svc.Accounts.ConnectAccounts(r.Context(), userID(r), req.Code)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, connectResponse{
			Success: true,
			Message: s.tr.T(i18n.KeyAccountsConnected),
			Count:   count,
		})
	}
}

func (s *Server) handleDeleteAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := s.svc.Accounts.DeleteAccount(r.Context(), userID(r), mux.Vars(r)["accountId"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !deleted {
			writeJSON(w, http.StatusOK, errors.Envelope{Success: false, Message: s.tr.T(i18n.KeyAccountNotDeleted)})
			return
		}
		writeJSON(w, http.StatusOK, errors.Envelope{Success: true, Message: s.tr.T(i18n.KeyAccountDeleted)})
	}
}
