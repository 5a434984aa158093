package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/modelkit/contrast/contrast"
	"github.com/modelkit/contrast/internal/logger"
	"github.com/modelkit/contrast/multiprojectengine"
)

type Server struct {
	db            *sql.DB
	engineManager *multiprojectengine.MultiProjectEngineManager
	router        *chi.Mux
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	engineManager := multiprojectengine.NewMultiProjectEngineManager(db)

	logger.Info("Loading projects from database...")
	if err := engineManager.LoadAllProjects(); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	projects := engineManager.ListProjects()
	logger.Info("Loaded projects", "count", len(projects))

	s := &Server{
		db:            db,
		engineManager: engineManager,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Comparison
	r.Post("/api/v1/compare", s.handleCompare)

	// Project management
	r.Route("/api/v1/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)

		r.Route("/{projectId}", func(r chi.Router) {
			r.Post("/reload", s.handleReloadProject)

			// Model summary management
			r.Post("/models", s.handleUploadModel)
			r.Get("/models", s.handleListModels)
			r.Get("/models/{modelId}", s.handleGetModel)
			r.Delete("/models/{modelId}", s.handleDeleteModel)

			// Screen management
			r.Post("/screens", s.handleCreateScreen)
			r.Get("/screens", s.handleListScreens)
			r.Get("/screens/{screenId}", s.handleGetScreen)
			r.Put("/screens/{screenId}", s.handleUpdateScreen)
			r.Delete("/screens/{screenId}", s.handleDeleteScreen)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"projectsLoaded": len(s.engineManager.ListProjects()),
		"comparisons":    logger.Comparisons.Load(),
	})
}

// Comparison handler. Serves single-pair contrasts and all-pairs
// enumerations, optionally running the project's active screens against
// each result.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "projectId is required", nil)
		return
	}
	if req.ModelID == "" {
		respondError(w, http.StatusBadRequest, "modelId is required", nil)
		return
	}
	if !req.AllPairs && (req.Base == "" || req.Comparison == "") {
		respondError(w, http.StatusBadRequest, "base and comparison are required unless allPairs is set", nil)
		return
	}

	level := req.Level
	if level == 0 {
		level = contrast.DefaultLevel
	}

	var engine *contrast.Engine
	if req.Screens {
		var err error
		engine, err = s.engineManager.GetEngine(req.ProjectID)
		if err != nil {
			respondError(w, http.StatusNotFound, "project not found", err)
			return
		}
	}

	store := contrast.NewPostgresSummaryStore(s.db, req.ProjectID)
	sum, err := store.Get(req.ModelID)
	if err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}

	startTime := time.Now()

	if !req.AllPairs {
		var cmp *contrast.Comparison
		var err error
		if level == contrast.DefaultLevel {
			// The documented default uses the conventional 1.96 exactly.
			cmp, err = contrast.Compare(sum, req.Base, req.Comparison)
		} else {
			cmp, err = contrast.CompareAt(sum, req.Base, req.Comparison, level)
		}
		if err != nil {
			respondError(w, comparatorStatus(err), "comparison failed", err)
			return
		}
		logger.Comparisons.Add(1)

		resp := map[string]any{
			"result":         cmp,
			"evaluationTime": time.Since(startTime).String(),
		}
		if req.Screens {
			screens, err := engine.ScreenAll(cmp, sum)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "screening failed", err)
				return
			}
			resp["screens"] = screenResponses(screens)
		}

		respondJSON(w, http.StatusOK, resp)
		return
	}

	pairs := contrast.AllPairsAt(sum, level)
	results := make([]PairResponse, 0, len(pairs))
	for _, pair := range pairs {
		pr := PairResponse{
			Base:       pair.Base,
			Comparison: pair.Comparison,
			Result:     pair.Result,
		}
		if pair.Err != nil {
			// Isolate the failed pair; the rest of the batch stands.
			msg := pair.Err.Error()
			pr.Error = &msg
		} else {
			logger.Comparisons.Add(1)
			if req.Screens {
				screens, err := engine.ScreenAll(pair.Result, sum)
				if err != nil {
					respondError(w, http.StatusInternalServerError, "screening failed", err)
					return
				}
				pr.Screens = screenResponses(screens)
			}
		}
		results = append(results, pr)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results":        results,
		"evaluationTime": time.Since(startTime).String(),
	})
}

// comparatorStatus maps comparator domain errors to HTTP status codes. A
// malformed request is the caller's fault; a contract violation in the
// stored summary is unprocessable rather than a server failure.
func comparatorStatus(err error) int {
	switch {
	case errors.Is(err, contrast.ErrSelfComparison),
		errors.Is(err, contrast.ErrInvalidLevel):
		return http.StatusBadRequest
	case errors.Is(err, contrast.ErrCoefficientNotFound),
		errors.Is(err, contrast.ErrNegativeStdErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func screenResponses(results []*contrast.ScreenResult) []ScreenEvalResponse {
	out := make([]ScreenEvalResponse, 0, len(results))
	for _, res := range results {
		sr := ScreenEvalResponse{
			ScreenID:   res.ScreenID,
			ScreenName: res.ScreenName,
			Matched:    res.Matched,
		}
		if res.Error != nil {
			msg := res.Error.Error()
			sr.Error = &msg
		}
		if !res.Matched {
			logger.ScreenMisses.Add(1)
		}
		out = append(out, sr)
	}
	return out
}

// List projects handler
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query("SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at DESC")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list projects", err)
		return
	}
	defer rows.Close()

	projects := []ProjectResponse{}
	for rows.Next() {
		var p ProjectResponse
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan project", err)
			return
		}
		projects = append(projects, p)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
	})
}

// Create project handler
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	var projectID string
	err := s.db.QueryRow(`
		INSERT INTO projects (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id
	`, req.Name).Scan(&projectID)

	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create project", err)
		return
	}

	if err := s.engineManager.CreateProject(projectID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize project engine", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   projectID,
		"name": req.Name,
	})
}

// Reload project handler. Rebuilds the project's engine from the store and
// atomically swaps it in, picking up screens changed outside the API (seed
// scripts, manual SQL).
func (s *Server) handleReloadProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	if _, err := s.engineManager.GetEngine(projectID); err != nil {
		respondError(w, http.StatusNotFound, "project not found", err)
		return
	}

	if err := s.engineManager.ReloadProject(projectID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload project", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "reloaded",
	})
}

// Upload model summary handler
func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	var req UploadModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sum := &contrast.ModelSummary{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Name:         req.Name,
		Family:       req.Family,
		Coefficients: req.Coefficients,
	}

	if err := multiprojectengine.ValidateSummary(sum); err != nil {
		respondError(w, http.StatusBadRequest, "invalid model summary", err)
		return
	}

	store := contrast.NewPostgresSummaryStore(s.db, projectID)
	if err := store.Add(sum); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store model", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":           sum.ID,
		"name":         sum.Name,
		"family":       sum.Family,
		"coefficients": len(sum.Coefficients),
	})
}

// List models handler
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	store := contrast.NewPostgresSummaryStore(s.db, projectID)
	summaries, err := store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list models", err)
		return
	}

	models := make([]ModelResponse, 0, len(summaries))
	for _, sum := range summaries {
		models = append(models, modelResponse(sum))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"models": models,
	})
}

// Get model handler
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	modelID := chi.URLParam(r, "modelId")

	store := contrast.NewPostgresSummaryStore(s.db, projectID)
	sum, err := store.Get(modelID)
	if err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}

	respondJSON(w, http.StatusOK, modelResponse(sum))
}

// Delete model handler
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	modelID := chi.URLParam(r, "modelId")

	store := contrast.NewPostgresSummaryStore(s.db, projectID)
	if err := store.Delete(modelID); err != nil {
		respondError(w, http.StatusNotFound, "model not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Create screen handler
func (s *Server) handleCreateScreen(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	var req CreateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine, err := s.engineManager.GetEngine(projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "project not found", err)
		return
	}

	screen := &contrast.Screen{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Expression: req.Expression,
		Active:     req.Active,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := multiprojectengine.ValidateScreen(screen); err != nil {
		respondError(w, http.StatusBadRequest, "invalid screen", err)
		return
	}

	// AddScreen compiles the expression, so an invalid screen never lands
	// in the store.
	if err := engine.AddScreen(screen); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add screen", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         screen.ID,
		"name":       screen.Name,
		"expression": screen.Expression,
		"active":     screen.Active,
	})
}

// List screens handler
func (s *Server) handleListScreens(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	rows, err := s.db.Query(`
		SELECT id, name, expression, active, created_at, updated_at
		FROM screens
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list screens", err)
		return
	}
	defer rows.Close()

	screens := []ScreenResponse{}
	for rows.Next() {
		var sc ScreenResponse
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Expression, &sc.Active, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan screen", err)
			return
		}
		screens = append(screens, sc)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"screens": screens,
	})
}

// Get screen handler
func (s *Server) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	screenID := chi.URLParam(r, "screenId")

	store := contrast.NewPostgresScreenStore(s.db, projectID)
	screen, err := store.Get(screenID)
	if err != nil {
		respondError(w, http.StatusNotFound, "screen not found", err)
		return
	}

	respondJSON(w, http.StatusOK, screenResponse(screen))
}

// Update screen handler
func (s *Server) handleUpdateScreen(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	screenID := chi.URLParam(r, "screenId")

	var req UpdateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine, err := s.engineManager.GetEngine(projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "project not found", err)
		return
	}

	screen := &contrast.Screen{
		ID:         screenID,
		Name:       req.Name,
		Expression: req.Expression,
		Active:     req.Active,
		UpdatedAt:  time.Now(),
	}

	if err := multiprojectengine.ValidateScreen(screen); err != nil {
		respondError(w, http.StatusBadRequest, "invalid screen", err)
		return
	}

	if err := engine.UpdateScreen(screen); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update screen", err)
		return
	}

	// Re-read so the response carries the preserved CreatedAt.
	stored, err := contrast.NewPostgresScreenStore(s.db, projectID).Get(screenID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load updated screen", err)
		return
	}

	respondJSON(w, http.StatusOK, screenResponse(stored))
}

// Delete screen handler
func (s *Server) handleDeleteScreen(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	screenID := chi.URLParam(r, "screenId")

	engine, err := s.engineManager.GetEngine(projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "project not found", err)
		return
	}

	if err := engine.DeleteScreen(screenID); err != nil {
		respondError(w, http.StatusNotFound, "screen not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if status >= 500 {
		logger.Total5xxErrors.Add(1)
	} else if status >= 400 {
		logger.Total4xxErrors.Add(1)
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func modelResponse(sum *contrast.ModelSummary) ModelResponse {
	return ModelResponse{
		ID:           sum.ID,
		Name:         sum.Name,
		Family:       sum.Family,
		Coefficients: sum.Coefficients,
		CreatedAt:    sum.CreatedAt,
		UpdatedAt:    sum.UpdatedAt,
	}
}

func screenResponse(sc *contrast.Screen) ScreenResponse {
	return ScreenResponse{
		ID:         sc.ID,
		Name:       sc.Name,
		Expression: sc.Expression,
		Active:     sc.Active,
		CreatedAt:  sc.CreatedAt,
		UpdatedAt:  sc.UpdatedAt,
	}
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
