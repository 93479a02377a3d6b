package handlers

import (
	"context"
	"net/http"

	"contractor-backend/internal/models"
	"contractor-backend/pkg/utils"
)

type ProfileAPI interface {
	Profile(ctx context.Context, userID int64) (models.BusinessProfile, error)
	Save(ctx context.Context, p *models.BusinessProfile) error
}

type ProfileHandler struct {
	Service ProfileAPI
}

func NewProfileHandler(s ProfileAPI) *ProfileHandler {
	return &ProfileHandler{Service: s}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.Service.Profile(r.Context(), userID)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}

// Save replaces the caller's business profile
func (h *ProfileHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var p models.BusinessProfile
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.HandleError(w, r, err)
		return
	}
	p.UserID = userID

	if err := h.Service.Save(r.Context(), &p); err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}
