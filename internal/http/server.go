package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"photofix/internal/blob"
	"photofix/internal/config"
	"photofix/internal/models"
	"photofix/internal/services"
)

type Server struct {
	svc   *services.Service
	blobs blob.Store
	cfg   config.Config
	log   *zap.Logger
}

func NewServer(svc *services.Service, blobs blob.Store, cfg config.Config, log *zap.Logger) *Server {
	return &Server{svc: svc, blobs: blobs, cfg: cfg, log: log}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.log.Error("panic recovered",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rvr),
					zap.ByteString("stack", debug.Stack()))
				respondError(w, http.StatusInternalServerError, errors.New("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.log.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/subscriptions/plans", s.handleListPlans)

		r.Group(func(r chi.Router) {
			r.Use(s.jwtMiddleware)

			r.Get("/account", s.handleGetAccount)

			r.Post("/edits", s.handleCreateEdit)
			r.Get("/edits", s.handleListEdits)
			r.Get("/edits/{id}", s.handleGetEdit)
			r.Delete("/edits/{id}", s.handleDeleteEdit)

			r.Get("/history", s.handleListHistory)
			r.Delete("/history/{id}", s.handleDeleteHistoryEntry)

			r.Get("/subscriptions/status", s.handleSubscriptionStatus)
			r.Post("/subscriptions/purchase", s.handlePurchaseSubscription)
			r.Post("/subscriptions/cancel", s.handleCancelSubscription)

			r.Get("/files/{ref}", s.handleGetFile)
		})
	})

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	account, err := s.svc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	token, err := s.generateJWT(account.ID, account.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":   token,
		"account": accountPayload(account),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	account, err := s.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	token, err := s.generateJWT(account.ID, account.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"account": accountPayload(account),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromContext(r.Context())
	account, err := s.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	entitlement, err := s.svc.GetEntitlement(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account":     accountPayload(account),
		"entitlement": entitlement,
	})
}

type createEditRequest struct {
	Operation   string            `json:"operation"`
	ImageBase64 string            `json:"image_base64"`
	MimeType    string            `json:"mime_type"`
	Parameters  map[string]string `json:"parameters"`
}

func (s *Server) handleCreateEdit(w http.ResponseWriter, r *http.Request) {
	var req createEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("image_base64 is not valid base64"))
		return
	}

	edit, err := s.svc.ProcessEdit(r.Context(), accountIDFromContext(r.Context()),
		req.Operation, image, req.MimeType, req.Parameters)
	if err != nil {
		if errors.Is(err, services.ErrProviderUnavailable) {
			// The record exists in failed state; return both so the
			// client can show the failure alongside the message.
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error": err.Error(),
				"edit":  edit,
			})
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"edit": edit})
}

func (s *Server) handleListEdits(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	edits, err := s.svc.ListEdits(r.Context(), accountIDFromContext(r.Context()), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"edits": edits})
}

func (s *Server) handleGetEdit(w http.ResponseWriter, r *http.Request) {
	edit, err := s.svc.GetEdit(r.Context(), chi.URLParam(r, "id"), accountIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"edit": edit})
}

func (s *Server) handleDeleteEdit(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteEdit(r.Context(), chi.URLParam(r, "id"), accountIDFromContext(r.Context())); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	entries, err := s.svc.ListHistory(r.Context(), accountIDFromContext(r.Context()), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleDeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.PurgeHistoryEntry(r.Context(), chi.URLParam(r, "id"), accountIDFromContext(r.Context())); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"plans": s.svc.Plans()})
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.GetSubscriptionStatus(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"subscription": status})
}

type purchaseRequest struct {
	PlanType      string `json:"plan_type"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handlePurchaseSubscription(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := s.svc.PurchaseSubscription(r.Context(), accountIDFromContext(r.Context()), req.PlanType, req.PaymentMethod)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"subscription": sub})
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.CancelSubscription(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.blobs.Get(chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, http.StatusNotFound, errors.New("file not found"))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func accountPayload(account models.Account) map[string]any {
	return map[string]any{
		"id":                account.ID,
		"email":             account.Email,
		"name":              account.Name,
		"tier":              account.Tier,
		"tier_expiry":       account.TierExpiry,
		"credits_remaining": account.CreditsRemaining,
		"created_at":        account.CreatedAt,
	}
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
