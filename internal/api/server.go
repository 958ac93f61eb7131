package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BrightWayAI/grant-builder-sub003/internal/ai"
	"github.com/BrightWayAI/grant-builder-sub003/internal/auth"
	"github.com/BrightWayAI/grant-builder-sub003/internal/db"
	"github.com/BrightWayAI/grant-builder-sub003/internal/enforce"
	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	AI          *ai.OllamaClient

	gatekeeper  *enforce.Gatekeeper
	scanner     *enforce.PlaceholderScanner
	ambiguities *enforce.AmbiguityDetector
}

func NewServer(pool *pgxpool.Pool) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	store := db.NewStore(pool)
	authService := auth.NewService(pool)

	aiClient := ai.NewOllamaClient(os.Getenv("OLLAMA_HOST"), "")

	cfg := enforce.DefaultConfig()
	scanner := enforce.NewPlaceholderScanner(store)
	ambiguities := enforce.NewAmbiguityDetector()
	citations := enforce.NewCitationMapper(store, aiClient, cfg)
	claims := enforce.NewClaimVerifier(store, cfg)
	compliance := enforce.NewComplianceChecker(store, cfg)
	coverage := enforce.NewCoverageScorer(store)
	gatekeeper := enforce.NewGatekeeper(store, scanner, ambiguities, citations, claims, compliance, coverage)

	s := &Server{
		DB:          pool,
		Store:       store,
		AuthService: authService,
		Echo:        e,
		AI:          aiClient,
		gatekeeper:  gatekeeper,
		scanner:     scanner,
		ambiguities: ambiguities,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Everything below is scoped to the caller's organization.
	proposals := api.Group("/proposals")
	proposals.Use(auth.Middleware)
	proposals.POST("", s.handleCreateProposal)
	proposals.GET("/:id", s.handleGetProposal)
	proposals.PUT("/:id/sections/:sectionId", s.handleUpdateSection)
	proposals.POST("/:id/ambiguities/:ambiguityId/resolve", s.handleResolveAmbiguity)
	proposals.POST("/:id/checklist", s.handleSetChecklist)
	proposals.POST("/:id/checklist/:itemId/map", s.handleMapChecklistItem)
	proposals.POST("/:id/evidence", s.handleAddEvidence)
	proposals.GET("/:id/export/enforcement", s.handleEnforcementStatus)
	proposals.POST("/:id/export/evaluate", s.handleEvaluateGate)

	audits := api.Group("/audits")
	audits.Use(auth.Middleware)
	audits.POST("/:id/attest", s.handleAttest)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// jsonError maps the enforcement error taxonomy onto HTTP statuses.
func jsonError(c echo.Context, err error) error {
	var verr *enforce.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, enforce.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	case errors.Is(err, enforce.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
}

// Auth

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

// Proposals

type createProposalRequest struct {
	Title         string   `json:"title"`
	FunderName    string   `json:"funder_name"`
	RFPText       string   `json:"rfp_text"`
	SectionTitles []string `json:"section_titles"`
}

func (s *Server) handleCreateProposal(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req createProposalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return jsonError(c, enforce.NewValidationError("title", "must not be empty"))
	}
	if len(req.SectionTitles) == 0 {
		req.SectionTitles = []string{"Narrative", "Budget", "Organizational Capacity"}
	}

	proposal := models.Proposal{
		OrganizationID: orgID,
		Title:          req.Title,
		FunderName:     req.FunderName,
		RFPText:        req.RFPText,
	}
	if err := s.Store.CreateProposal(ctx, &proposal, req.SectionTitles); err != nil {
		return jsonError(c, err)
	}

	// Ambiguity detection must never abort the save; degrade to an empty
	// list on any trouble. A lost persist here is repaired by the gate,
	// which re-detects and writes the set back when it finds none stored.
	ambiguities := s.ambiguities.DetectAmbiguities(req.RFPText, proposal.ID.String())
	if len(ambiguities) > 0 {
		if err := s.Store.ReplaceAmbiguities(ctx, proposal.ID, ambiguities); err != nil {
			log.Printf("Failed to persist ambiguities for %s: %v", proposal.ID, err)
			ambiguities = nil
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"proposal":    proposal,
		"ambiguities": ambiguities,
	})
}

func (s *Server) handleGetProposal(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}

	proposal, err := s.Store.GetProposal(ctx, orgID, proposalID)
	if err != nil {
		return jsonError(c, err)
	}
	sections, err := s.Store.ListSections(ctx, proposalID)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"proposal": proposal,
		"sections": sections,
	})
}

type updateSectionRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateSection(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}
	sectionID, err := uuid.Parse(c.Param("sectionId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid section ID"})
	}

	if _, err := s.Store.GetProposal(ctx, orgID, proposalID); err != nil {
		return jsonError(c, err)
	}

	var req updateSectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := s.Store.UpdateSectionContent(ctx, proposalID, sectionID, req.Content); err != nil {
		return jsonError(c, err)
	}

	// Keep the stored placeholder set in step with the edit. The refreshed
	// set rides back on the response; a scan failure degrades to an empty
	// list but never loses the save.
	placeholders, err := s.scanner.ScanAndPersist(ctx, proposalID)
	if err != nil {
		log.Printf("Placeholder re-scan failed for %s: %v", proposalID, err)
		placeholders = nil
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "saved",
		"placeholders": placeholders,
	})
}

// handleResolveAmbiguity marks a stored ambiguity as resolved, which is the
// only way to clear its gate signal: the RFP requirement itself does not
// change, the drafter settles it with the funder and records that here.
func (s *Server) handleResolveAmbiguity(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}
	ambiguityID, err := uuid.Parse(c.Param("ambiguityId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ambiguity ID"})
	}
	if _, err := s.Store.GetProposal(ctx, orgID, proposalID); err != nil {
		return jsonError(c, err)
	}

	if err := s.Store.ResolveAmbiguity(ctx, proposalID, ambiguityID); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "resolved"})
}

// Checklist

type setChecklistRequest struct {
	Items []string `json:"items"`
}

func (s *Server) handleSetChecklist(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}
	if _, err := s.Store.GetProposal(ctx, orgID, proposalID); err != nil {
		return jsonError(c, err)
	}

	var req setChecklistRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if len(req.Items) == 0 {
		return jsonError(c, enforce.NewValidationError("items", "must not be empty"))
	}

	items, err := s.Store.CreateChecklistItems(ctx, proposalID, req.Items)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"items": items})
}

type mapChecklistRequest struct {
	SectionID string `json:"section_id"`
}

func (s *Server) handleMapChecklistItem(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid checklist item ID"})
	}
	if _, err := s.Store.GetProposal(ctx, orgID, proposalID); err != nil {
		return jsonError(c, err)
	}

	var req mapChecklistRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	sectionID, err := uuid.Parse(req.SectionID)
	if err != nil {
		return jsonError(c, enforce.NewValidationError("section_id", "must be a valid UUID"))
	}

	if err := s.Store.MapSectionToChecklistItem(ctx, proposalID, itemID, sectionID); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "mapped"})
}

// Evidence

type addEvidenceRequest struct {
	Chunks []struct {
		Source  string `json:"source"`
		Content string `json:"content"`
	} `json:"chunks"`
}

func (s *Server) handleAddEvidence(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}
	if _, err := s.Store.GetProposal(ctx, orgID, proposalID); err != nil {
		return jsonError(c, err)
	}

	var req addEvidenceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if len(req.Chunks) == 0 {
		return jsonError(c, enforce.NewValidationError("chunks", "must not be empty"))
	}

	chunks := make([]models.EvidenceChunk, 0, len(req.Chunks))
	for _, in := range req.Chunks {
		if strings.TrimSpace(in.Content) == "" {
			continue
		}
		ch := models.EvidenceChunk{
			OrganizationID: orgID,
			Source:         in.Source,
			Content:        in.Content,
		}
		// Embeddings are best-effort; lexical scoring covers chunks that
		// arrive without one.
		embedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		vec, err := s.AI.GenerateEmbedding(embedCtx, in.Content)
		cancel()
		if err != nil {
			c.Logger().Errorf("Failed to embed evidence chunk: %v", err)
		} else {
			ch.Embedding = vec
		}
		chunks = append(chunks, ch)
	}

	if err := s.Store.InsertEvidenceChunks(ctx, chunks); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"chunks": chunks})
}

// Export gate

func (s *Server) handleEnforcementStatus(c echo.Context) error {
	ctx := c.Request().Context()
	_, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}

	snapshot, err := s.gatekeeper.Snapshot(ctx, orgID, proposalID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

type evaluateGateRequest struct {
	ExportFormat string `json:"export_format"`
}

func (s *Server) handleEvaluateGate(c echo.Context) error {
	ctx := c.Request().Context()
	userID, orgID, err := auth.Identity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}

	var req evaluateGateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	eval, err := s.gatekeeper.Evaluate(ctx, orgID, proposalID, userID, models.ExportFormat(req.ExportFormat))
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"gate_result":     eval.GateResult,
		"audit_record_id": eval.AuditRecord.ID,
		"enforcement":     eval.Enforcement,
	})
}

type attestRequest struct {
	AttestationText string `json:"attestation_text"`
}

func (s *Server) handleAttest(c echo.Context) error {
	ctx := c.Request().Context()
	if _, _, err := auth.Identity(c); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	auditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid audit record ID"})
	}

	var req attestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := s.gatekeeper.RecordAttestation(ctx, auditID, strings.TrimSpace(req.AttestationText)); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
