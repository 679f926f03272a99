package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/config"
	"github.com/relay-commerce/relay-inventory/models"
	"github.com/relay-commerce/relay-inventory/persistence"
	"github.com/relay-commerce/relay-inventory/queue"
	"github.com/relay-commerce/relay-inventory/storage"
)

// Server is the control API. It admits runs onto the queue and exposes
// tenant configs, run state and artifact download URLs.
type Server struct {
	echo    *echo.Echo
	runs    persistence.RunStore
	tenants persistence.TenantStore
	jobs    *queue.JobQueue
	blobs   *storage.BlobStore
	cfg     config.ServerConfig

	now func() time.Time
}

// NewServer wires the server and its routes.
func NewServer(runs persistence.RunStore, tenants persistence.TenantStore, jobs *queue.JobQueue, blobs *storage.BlobStore, cfg config.ServerConfig) *Server {
	s := &Server{
		echo:    echo.New(),
		runs:    runs,
		tenants: tenants,
		jobs:    jobs,
		blobs:   blobs,
		cfg:     cfg,
		now:     time.Now,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(APIKeyMiddleware(APIKeyConfig{
		Keys: cfg.APIKeys,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/v1/health"
		},
	}))

	v1 := s.echo.Group("/v1")
	v1.GET("/health", s.health)
	v1.POST("/tenants", s.createTenant)
	v1.GET("/tenants/:id", s.getTenant)
	v1.PUT("/tenants/:id/config", s.updateTenantConfig)
	v1.POST("/runs", s.createRun)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/runs/:id/artifacts", s.getRunArtifacts)
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	common.LogEvent(nil, "api_started", map[string]interface{}{"addr": addr})
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) createTenant(c echo.Context) error {
	var tenantConfig models.TenantConfig
	if err := json.NewDecoder(c.Request().Body).Decode(&tenantConfig); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant config json")
	}
	tenantConfig.ApplyDefaults()
	if tenantConfig.SchemaVersion != models.SupportedSchemaVersion {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported schema_version %d", tenantConfig.SchemaVersion))
	}
	if err := tenantConfig.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := s.tenants.GetLatestTenantConfig(c.Request().Context(), tenantConfig.TenantID); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "tenant already exists")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	record := &models.TenantRecord{
		TenantID:      tenantConfig.TenantID,
		ConfigVersion: 1,
		Config:        tenantConfig,
	}
	if err := s.tenants.PutTenantConfig(c.Request().Context(), record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, record)
}

func (s *Server) getTenant(c echo.Context) error {
	record, err := s.tenants.GetLatestTenantConfig(c.Request().Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, record)
}

// updateTenantConfig appends a new config version; existing versions are
// never mutated so queued runs keep the config they pinned.
func (s *Server) updateTenantConfig(c echo.Context) error {
	tenantID := c.Param("id")
	latest, err := s.tenants.GetLatestTenantConfig(c.Request().Context(), tenantID)
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var tenantConfig models.TenantConfig
	if err := json.NewDecoder(c.Request().Body).Decode(&tenantConfig); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant config json")
	}
	tenantConfig.TenantID = tenantID
	tenantConfig.ApplyDefaults()
	if tenantConfig.SchemaVersion != models.SupportedSchemaVersion {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported schema_version %d", tenantConfig.SchemaVersion))
	}
	if err := tenantConfig.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	record := &models.TenantRecord{
		TenantID:      tenantID,
		ConfigVersion: latest.ConfigVersion + 1,
		Config:        tenantConfig,
	}
	if err := s.tenants.PutTenantConfig(c.Request().Context(), record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, record)
}

type createRunRequest struct {
	TenantID string   `json:"tenant_id"`
	Vendors  []string `json:"vendors,omitempty"`
}

// createRun admits a run: one RUNNING or QUEUED run per tenant, run_id
// minted here, config version pinned to the tenant's latest.
func (s *Server) createRun(c echo.Context) error {
	var request createRunRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run request json")
	}
	if request.TenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}
	ctx := c.Request().Context()

	tenant, err := s.tenants.GetLatestTenantConfig(ctx, request.TenantID)
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if running, err := s.runs.FindRunningByTenant(ctx, request.TenantID, ""); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if running != nil {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("run %s is already running for tenant %s", running.RunID, request.TenantID))
	}

	vendors := request.Vendors
	if len(vendors) == 0 {
		for _, vendor := range tenant.Config.Vendors {
			vendors = append(vendors, vendor.VendorID)
		}
	}

	requestedAt := s.now().UTC()
	record := &models.RunRecord{
		RunID:         uuid.NewString(),
		TenantID:      request.TenantID,
		ConfigVersion: tenant.ConfigVersion,
		Status:        models.StatusQueued,
		Stage:         models.StageQueue,
		RequestedAt:   &requestedAt,
	}
	if err := s.runs.CreateRun(ctx, record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	job := models.RunJob{
		RunID:         record.RunID,
		TenantID:      record.TenantID,
		Vendors:       vendors,
		ConfigVersion: record.ConfigVersion,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := s.jobs.Send(ctx, body); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	common.LogEvent(nil, "run_enqueued", map[string]interface{}{
		"run_id":         record.RunID,
		"tenant_id":      record.TenantID,
		"config_version": record.ConfigVersion,
	})
	return c.JSON(http.StatusCreated, record)
}

func (s *Server) getRun(c echo.Context) error {
	record, err := s.runs.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, record)
}

// getRunArtifacts returns presigned download URLs for every artifact the
// run has produced so far.
func (s *Server) getRunArtifacts(c echo.Context) error {
	ctx := c.Request().Context()
	record, err := s.runs.GetRun(ctx, c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	expiry := time.Duration(s.cfg.PresignExpirySeconds) * time.Second
	urls := make(map[string]string, len(record.Artifacts))
	for name, key := range record.Artifacts {
		url, err := s.blobs.Presign(ctx, key, expiry)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		urls[name] = url
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":    record.RunID,
		"artifacts": urls,
	})
}
