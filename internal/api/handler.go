package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safeher/safeher-backend/internal/dispatch"
	"github.com/safeher/safeher-backend/internal/models"
	"github.com/safeher/safeher-backend/internal/repository"
)

// Dispatcher is the dispatch service as the handler sees it.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, loc models.LocationResult) (*dispatch.Summary, error)
}

type Handler struct {
	dispatcher Dispatcher
	alerts     repository.AlertRepository
	contacts   repository.ContactRepository
}

func NewHandler(dispatcher Dispatcher, alerts repository.AlertRepository, contacts repository.ContactRepository) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		alerts:     alerts,
		contacts:   contacts,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/sos", h.triggerSOS)
	r.GET("/api/alerts", h.listAlerts)
	r.POST("/api/alerts/:id/resolve", h.resolveAlert)
	r.GET("/api/contacts", h.listContacts)
	r.POST("/api/contacts", h.addContact)
	r.DELETE("/api/contacts/:id", h.deleteContact)
	r.POST("/api/contacts/:id/primary", h.setPrimaryContact)
	r.GET("/health", h.health)
}

type sosRequest struct {
	UserID       string   `json:"user_id" binding:"required"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName *string  `json:"location_name"`
}

func (h *Handler) triggerSOS(c *gin.Context) {
	var req sosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	loc := models.LocationResult{
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		LocationName: req.LocationName,
	}

	summary, err := h.dispatcher.Dispatch(c.Request.Context(), req.UserID, loc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to dispatch emergency alert",
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type alertResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	LocationName *string    `json:"location_name"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at"`
}

func toAlertResponse(a models.Alert) alertResponse {
	return alertResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
		LocationName: a.LocationName,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		ResolvedAt:   a.ResolvedAt,
	}
}

func (h *Handler) listAlerts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	alerts, err := h.alerts.ListAlertsByUser(c.Request.Context(), userID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

type resolveRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) resolveAlert(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status := models.AlertStatus(req.Status)
	if status != models.AlertStatusResolved && status != models.AlertStatusCancelled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be resolved or cancelled"})
		return
	}

	err := h.alerts.ResolveAlert(c.Request.Context(), c.Param("id"), status)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found or not active"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

type contactResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        *string   `json:"email"`
	Relationship *string   `json:"relationship"`
	IsPrimary    bool      `json:"is_primary"`
	CreatedAt    time.Time `json:"created_at"`
}

func toContactResponse(c models.Contact) contactResponse {
	return contactResponse{
		ID:           c.ID,
		UserID:       c.UserID,
		Name:         c.Name,
		Phone:        c.Phone,
		Email:        c.Email,
		Relationship: c.Relationship,
		IsPrimary:    c.IsPrimary,
		CreatedAt:    c.CreatedAt,
	}
}

func (h *Handler) listContacts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	contacts, err := h.contacts.ListContactsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch contacts"})
		return
	}

	out := make([]contactResponse, 0, len(contacts))
	for _, contact := range contacts {
		out = append(out, toContactResponse(contact))
	}
	c.JSON(http.StatusOK, out)
}

type addContactRequest struct {
	UserID       string  `json:"user_id" binding:"required"`
	Name         string  `json:"name" binding:"required"`
	Phone        string  `json:"phone" binding:"required"`
	Email        *string `json:"email"`
	Relationship *string `json:"relationship"`
}

func (h *Handler) addContact(c *gin.Context) {
	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and phone are required"})
		return
	}

	contact := &models.Contact{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Relationship: req.Relationship,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.contacts.AddContact(c.Request.Context(), contact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add contact"})
		return
	}

	c.JSON(http.StatusCreated, toContactResponse(*contact))
}

func (h *Handler) deleteContact(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	err := h.contacts.DeleteContact(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete contact"})
		return
	}

	c.Status(http.StatusNoContent)
}

type setPrimaryRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) setPrimaryContact(c *gin.Context) {
	var req setPrimaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	err := h.contacts.SetPrimaryContact(c.Request.Context(), req.UserID, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set primary contact"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
