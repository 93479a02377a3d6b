package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/middleware"
	"contractor-backend/internal/models"
	"contractor-backend/internal/services"
	"contractor-backend/pkg/utils"

	"github.com/gorilla/mux"
)

// DocumentAPI is implemented by services.DocumentService
type DocumentAPI interface {
	Create(ctx context.Context, t models.DocumentType, userID int64, req *models.CreateDocumentRequest) (*models.Document, error)
	Get(ctx context.Context, t models.DocumentType, userID, id int64) (*models.Document, error)
	List(ctx context.Context, t models.DocumentType, userID int64, status models.Status, page, pageSize int) (*services.DocumentList, error)
	Update(ctx context.Context, t models.DocumentType, userID, id int64, upd models.DocumentUpdate) (*models.Document, error)
	Delete(ctx context.Context, t models.DocumentType, userID, id int64) error
	Artifact(ctx context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error)
	RegenerateArtifact(ctx context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error)
	Send(ctx context.Context, t models.DocumentType, userID, id int64, req *models.SendDocumentRequest) (*models.SendDocumentResult, error)
}

// DocumentHandler serves one document type; the router mounts one per type
type DocumentHandler struct {
	Service DocumentAPI
	Type    models.DocumentType
}

func NewDocumentHandler(s DocumentAPI, t models.DocumentType) *DocumentHandler {
	return &DocumentHandler{Service: s, Type: t}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateDocumentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	doc, err := h.Service.Create(r.Context(), h.Type, userID, &req)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	list, err := h.Service.List(r.Context(), h.Type, userID, models.Status(q.Get("status")), page, pageSize)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, list)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.Get(r.Context(), h.Type, userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

// Update decodes into the update variant of this document type, so fields
// the type does not own are never applied.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	upd := models.NewUpdate(h.Type)
	if err := utils.DecodeJSON(r, upd); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	doc, err := h.Service.Update(r.Context(), h.Type, userID, id, upd)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), h.Type, userID, id); err != nil {
		utils.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send emails the document. The result body is returned for every outcome;
// the status tells success (200), mail unavailable (503) and send failure (502) apart.
func (h *DocumentHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	var req models.SendDocumentRequest
	if err := utils.DecodeOptionalJSON(r, &req); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	res, err := h.Service.Send(r.Context(), h.Type, userID, id, &req)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case res.Unavailable:
		status = http.StatusServiceUnavailable
	case !res.Success:
		status = http.StatusBadGateway
	}
	utils.JSON(w, status, res)
}

// Artifact streams the rendered document. ?download=1 asks for an attachment.
func (h *DocumentHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	data, doc, err := h.Service.Artifact(r.Context(), h.Type, userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	writeArtifact(w, r, doc, data)
}

func (h *DocumentHandler) RegenerateArtifact(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	data, doc, err := h.Service.RegenerateArtifact(r.Context(), h.Type, userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	writeArtifact(w, r, doc, data)
}

func writeArtifact(w http.ResponseWriter, r *http.Request, doc *models.Document, data []byte) {
	// uploaded estimate originals are not necessarily PDFs
	contentType := http.DetectContentType(data)
	ext := ".pdf"
	if contentType != "application/pdf" {
		ext = ""
	}

	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.Number+ext))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("handlers", "invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

func userAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := pathID(r)
	if err != nil {
		utils.HandleError(w, r, err)
		return 0, 0, false
	}
	return userID, id, true
}
