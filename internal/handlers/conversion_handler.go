package handlers

import (
	"context"
	"net/http"

	"contractor-backend/internal/models"
	"contractor-backend/pkg/utils"
)

type ConversionAPI interface {
	CreateInvoiceFromEstimate(ctx context.Context, userID, estimateID int64) (*models.Document, error)
	CreateProjectFromEstimate(ctx context.Context, userID, estimateID int64, fields models.ProjectFields) (*models.Project, error)
	Project(ctx context.Context, userID, projectID int64) (*models.Project, error)
}

type ConversionHandler struct {
	Service ConversionAPI
}

func NewConversionHandler(s ConversionAPI) *ConversionHandler {
	return &ConversionHandler{Service: s}
}

// ToInvoice creates a draft invoice from an approved estimate
func (h *ConversionHandler) ToInvoice(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	inv, err := h.Service.CreateInvoiceFromEstimate(r.Context(), userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, inv)
}

// ToProject creates a project with its default folders from an approved estimate
func (h *ConversionHandler) ToProject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	var fields models.ProjectFields
	if err := utils.DecodeOptionalJSON(r, &fields); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	p, err := h.Service.CreateProjectFromEstimate(r.Context(), userID, id, fields)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, p)
}

func (h *ConversionHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	p, err := h.Service.Project(r.Context(), userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}
