package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"opsdesk/internal/archive"
	"opsdesk/internal/auth"
	"opsdesk/internal/domain"
	"opsdesk/internal/repository"
	"opsdesk/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	incidents service.IncidentService
	users     service.UserService
	tokens    *auth.Manager
	archiver  *archive.Service
	logger    *logrus.Logger
}

// NewHandler builds the route handler. archiver may be nil when no archive
// bucket is configured.
func NewHandler(incidents service.IncidentService, users service.UserService, tokens *auth.Manager, archiver *archive.Service, logger *logrus.Logger) *Handler {
	return &Handler{
		incidents: incidents,
		users:     users,
		tokens:    tokens,
		archiver:  archiver,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.login)

		incidents := api.Group("/incidents", authMiddleware(h.tokens))
		{
			incidents.GET("", h.listIncidents)
			incidents.POST("", h.createIncident)
			incidents.PUT("/:id", h.updateIncident)
			incidents.DELETE("/:id", h.deleteIncident)
			incidents.POST("/export", h.exportIncidents)
		}

		archiveObjects := api.Group("/archive/objects", authMiddleware(h.tokens))
		{
			archiveObjects.GET("", h.listArchiveObjects)
			archiveObjects.DELETE("", h.pruneArchiveObjects)
		}
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.serverError(c, err)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.serverError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("user logged in: %s", user.Email)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) listIncidents(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))

	// An absent or non-numeric pageSize takes the default; a supplied value
	// is clamped, so an explicit 0 becomes 1, not 10.
	pageSize := service.DefaultPageSize
	if raw := c.Query("pageSize"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			pageSize = v
		}
	}

	result, err := h.incidents.List(c.Request.Context(), service.ListQuery{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
	})
	if err != nil {
		h.serverError(c, err)
		return
	}

	items := make([]IncidentResponse, len(result.Items))
	for i := range result.Items {
		items[i] = incidentToResponse(result.Items[i])
	}

	c.JSON(http.StatusOK, ListResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

type createIncidentRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	ReportedBy  string  `json:"reported_by"`
	AssignedTo  *string `json:"assigned_to"`
}

func (h *Handler) createIncident(c *gin.Context) {
	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	incident, err := h.incidents.Create(c.Request.Context(), service.CreateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
		Category:    req.Category,
		ReportedBy:  req.ReportedBy,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("incident created: %d", incident.ID)
	c.JSON(http.StatusCreated, incidentToResponse(*incident))
}

type updateIncidentRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Severity    *string `json:"severity"`
	Category    *string `json:"category"`
	ReportedBy  *string `json:"reported_by"`
	AssignedTo  *string `json:"assigned_to"`
}

func (h *Handler) updateIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	incident, err := h.incidents.Update(c.Request.Context(), id, service.UpdateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Severity:    req.Severity,
		Category:    req.Category,
		ReportedBy:  req.ReportedBy,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("incident updated: %d", id)
	c.JSON(http.StatusOK, incidentToResponse(*incident))
}

func (h *Handler) deleteIncident(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.incidents.Delete(c.Request.Context(), id); err != nil {
		h.serverError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("incident deleted: %d", id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportIncidents(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive storage not configured"})
		return
	}

	location, err := h.archiver.Export(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("snapshot export by user %d: %s", c.GetInt64(contextUserIDKey), location)
	c.JSON(http.StatusAccepted, gin.H{"location": location})
}

func (h *Handler) listArchiveObjects(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive storage not configured"})
		return
	}

	objects, err := h.archiver.ListSnapshots(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}

	resp := make([]ArchiveObjectResponse, len(objects))
	for i := range objects {
		resp[i] = ArchiveObjectResponse{
			Key:  objects[i].Key,
			Size: objects[i].Size,
		}
		if objects[i].LastModified != nil && !objects[i].LastModified.IsZero() {
			v := objects[i].LastModified.Format(time.RFC3339)
			resp[i].LastModified = &v
		}
		url, err := h.archiver.SnapshotURL(c.Request.Context(), objects[i].Key)
		if err != nil {
			h.serverError(c, err)
			return
		}
		resp[i].URL = url
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) pruneArchiveObjects(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive storage not configured"})
		return
	}

	if err := h.archiver.Prune(c.Request.Context()); err != nil {
		h.serverError(c, err)
		return
	}

	requestLogger(h.logger, c).Infof("archive pruned by user %d", c.GetInt64(contextUserIDKey))
	c.Status(http.StatusNoContent)
}

// IncidentResponse is the JSON shape of a single incident.
type IncidentResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	ReportedBy  string  `json:"reported_by"`
	AssignedTo  *string `json:"assigned_to"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ListResponse is one page of incidents plus pagination metadata.
type ListResponse struct {
	Items      []IncidentResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
}

type ArchiveObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	URL          string  `json:"url"`
	LastModified *string `json:"last_modified,omitempty"`
}

func incidentToResponse(incident domain.Incident) IncidentResponse {
	return IncidentResponse{
		ID:          incident.ID,
		Title:       incident.Title,
		Description: incident.Description,
		Status:      string(incident.Status),
		Priority:    string(incident.Priority),
		Severity:    incident.Severity,
		Category:    incident.Category,
		ReportedBy:  incident.ReportedBy,
		AssignedTo:  incident.AssignedTo,
		CreatedAt:   incident.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   incident.UpdatedAt.Format(time.RFC3339),
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto the HTTP taxonomy: validation → 400,
// not found → 404, everything else → generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  validationErr.Error(),
			"fields": validationErr.Fields,
		})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	h.serverError(c, err)
}

func (h *Handler) serverError(c *gin.Context, err error) {
	requestLogger(h.logger, c).Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
