// Package api serves the newsroom over HTTP: health, the signed payment
// webhook, read endpoints, and authenticated editor actions.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/billing"
	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/pipeline"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/workflow"
)

// editorActions are the workflow actions editors may take over HTTP.
var editorActions = map[workflow.Action]bool{
	workflow.ActionClaim:           true,
	workflow.ActionApprove:         true,
	workflow.ActionRequestRevision: true,
	workflow.ActionEscalate:        true,
	workflow.ActionArchive:         true,
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	newsroom *pipeline.Newsroom
	store    store.Store
	billing  *billing.Handler
	tiers    *billing.Catalogue
	auth     *Authenticator
	payments config.PaymentsConfig
	origins  []string
	now      func() time.Time
}

// NewServer creates a Server.
func NewServer(n *pipeline.Newsroom, bh *billing.Handler, tiers *billing.Catalogue, auth *Authenticator, cfg *config.Config) *Server {
	return &Server{
		newsroom: n,
		store:    n.Store(),
		billing:  bh,
		tiers:    tiers,
		auth:     auth,
		payments: cfg.Payments,
		origins:  cfg.Server.CORSOrigins,
		now:      time.Now,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)
	r.Post("/webhooks/payments", s.paymentWebhook)
	r.Get("/tiers", s.listTiers)

	r.Route("/articles", func(r chi.Router) {
		r.Get("/", s.listArticles)
		r.Get("/{id}", s.getArticle)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireEditor)
			r.Post("/{id}/actions", s.articleAction)
			r.Post("/{id}/corrections", s.fileCorrection)
		})
	})
	r.Route("/sources", func(r chi.Router) {
		r.Get("/", s.listSources)
		r.Get("/{id}/log", s.sourceLog)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, pipeline.ErrNotSeniorEditor):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrIllegalTransition), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPublishBlocked), errors.Is(err, workflow.ErrGuardFailed),
		errors.Is(err, pipeline.ErrInvalidCorrection), errors.Is(err, billing.ErrUnknownTier):
		return http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrMalformedEvent):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: internal error", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	limit := s.payments.MaxPayloadBytes
	if limit <= 0 {
		limit = 64 << 10
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	if int64(len(payload)) > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	tolerance := billing.DefaultTolerance
	if s.payments.ToleranceSecs > 0 {
		tolerance = time.Duration(s.payments.ToleranceSecs) * time.Second
	}
	if err := billing.VerifySignature(payload, r.Header.Get(billing.SignatureHeader), s.payments.WebhookSecret, tolerance, s.now()); err != nil {
		zap.L().Warn("api: webhook signature rejected", zap.Error(err))
		writeError(w, err)
		return
	}
	evt, err := billing.ParseEvent(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.billing.Handle(r.Context(), evt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTiers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tiers.All())
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ArticleFilter{
		AssignedEditor: q.Get("editor"),
		ManualOnly:     q.Get("manual") == "true",
	}
	if st := q.Get("status"); st != "" {
		status, err := model.ParseArticleStatus(st)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Status = status
	}
	var err error
	if f.Limit, err = intParam(r, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Offset, err = intParam(r, "offset"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Limit == 0 || f.Limit > 200 {
		f.Limit = 50
	}
	articles, err := s.store.ListArticles(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

type articleView struct {
	*model.Article
	Transitions []model.Transition `json:"transitions"`
	Corrections []model.Correction `json:"corrections"`
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	a, err := s.store.GetArticle(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	trs, err := s.store.ListTransitions(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	cs, err := s.store.ListCorrections(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articleView{Article: a, Transitions: trs, Corrections: cs})
}

type actionRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

func (s *Server) articleAction(w http.ResponseWriter, r *http.Request) {
	claims, _ := EditorFrom(r.Context())
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil || !editorActions[action] {
		badRequest(w, "action must be one of claim, approve, request_revision, escalate, archive")
		return
	}

	a, err := s.newsroom.Act(r.Context(), chi.URLParam(r, "id"), action, claims.Subject, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type correctionRequest struct {
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	Description      string   `json:"description"`
	SourceIDs        []string `json:"source_ids"`
	PublicDisclosure bool     `json:"public_disclosure"`
}

func (s *Server) fileCorrection(w http.ResponseWriter, r *http.Request) {
	claims, _ := EditorFrom(r.Context())
	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	out, err := s.newsroom.FileCorrection(r.Context(), &model.Correction{
		ArticleID:        chi.URLParam(r, "id"),
		Type:             model.CorrectionType(req.Type),
		Severity:         model.Severity(req.Severity),
		Description:      req.Description,
		SourceIDs:        req.SourceIDs,
		PublicDisclosure: req.PublicDisclosure,
		CreatedBy:        claims.Subject,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) sourceLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSource(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.store.ListReliabilityLog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
