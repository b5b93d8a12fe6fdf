package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"dealdesk/internal/domain"
	"dealdesk/internal/middleware"
	"dealdesk/internal/models"
	"dealdesk/internal/repository"
	"dealdesk/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type DisclosureHandler struct {
	disclosureRepo *repository.DisclosureRepository
	userRepo       *repository.UserRepository
	cloud          cloudinary.Client
}

func NewDisclosureHandler(disclosureRepo *repository.DisclosureRepository, userRepo *repository.UserRepository, cloud cloudinary.Client) *DisclosureHandler {
	return &DisclosureHandler{disclosureRepo: disclosureRepo, userRepo: userRepo, cloud: cloud}
}

type createDisclosureRequest struct {
	DealID       string `form:"deal_id" json:"deal_id" binding:"required"`
	DocumentURL  string `form:"document_url" json:"document_url"`
	DocumentType string `form:"document_type" json:"document_type" binding:"required"`
	InvestorIDs  []uint `form:"investor_ids" json:"investor_ids"`
}

// Create registers a disclosure packet for a deal. The document can arrive
// either as a multipart file upload or as a pre-hosted URL.
func (h *DisclosureHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req createDisclosureRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deal_id and document_type are required"})
		return
	}

	docURL := req.DocumentURL
	if file, err := c.FormFile("file"); err == nil {
		folder := "dealdesk/disclosures/" + req.DealID
		publicID := "doc_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer f.Close()
		docURL, err = h.cloud.UploadDocument(c.Request.Context(), f, folder, publicID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}
	}
	if docURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_url or file required"})
		return
	}

	for _, invID := range req.InvestorIDs {
		if _, err := h.userRepo.GetByID(invID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown investor id"})
			return
		}
	}

	d := &models.DealDisclosure{
		DealID:       req.DealID,
		DocumentURL:  docURL,
		DocumentType: req.DocumentType,
		CreatedByID:  userID,
	}
	if err := h.disclosureRepo.Create(d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create disclosure"})
		return
	}

	for _, invID := range req.InvestorIDs {
		entry := &models.DisclosureInvestor{
			DisclosureID: d.ID,
			InvestorID:   invID,
			SoftCommit:   domain.SoftCommitCommitted,
			Status:       domain.SignatureUnsigned,
			DocumentType: req.DocumentType,
		}
		if err := h.disclosureRepo.AddInvestor(entry); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not attach investor"})
			return
		}
	}

	created, err := h.disclosureRepo.GetByID(d.ID)
	if err != nil {
		created = d
	}
	c.JSON(http.StatusCreated, gin.H{"disclosure": created})
}

// ListByDeal returns every disclosure packet for a deal with investor entries.
func (h *DisclosureHandler) ListByDeal(c *gin.Context) {
	dealID := c.Param("dealId")
	ds, err := h.disclosureRepo.ListByDeal(dealID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list disclosures"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disclosures": ds})
}

type updateInvestorEntryRequest struct {
	SoftCommit   *string `json:"soft_commit"`
	Status       *string `json:"status"`
	ViewDocument *bool   `json:"view_document"`
}

// UpdateInvestorEntry lets an investor record their commitment, signature, or
// document-view state on a disclosure they were attached to.
func (h *DisclosureHandler) UpdateInvestorEntry(c *gin.Context) {
	userID := middleware.GetUserID(c)
	disclosureID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid disclosure id"})
		return
	}

	var req updateInvestorEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	updates := map[string]interface{}{}
	if req.SoftCommit != nil {
		sc := strings.ToUpper(*req.SoftCommit)
		if sc != domain.SoftCommitCommitted && sc != domain.SoftCommitRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "soft_commit must be COMMITTED or REJECTED"})
			return
		}
		updates["soft_commit"] = sc
	}
	if req.Status != nil {
		st := strings.ToUpper(*req.Status)
		if st != domain.SignatureSigned && st != domain.SignatureUnsigned {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be SIGNED or UNSIGNED"})
			return
		}
		updates["status"] = st
	}
	if req.ViewDocument != nil {
		updates["view_document"] = *req.ViewDocument
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if err := h.disclosureRepo.UpdateInvestorEntry(uint(disclosureID), userID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no entry for this investor on that disclosure"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete soft-deletes a disclosure packet. Only the fund manager who created
// it may remove it.
func (h *DisclosureHandler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid disclosure id"})
		return
	}
	d, err := h.disclosureRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "disclosure not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load disclosure"})
		return
	}
	claims := middleware.GetClaims(c)
	if d.CreatedByID != userID && (claims == nil || claims.Role != domain.RoleSuperAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}
	if err := h.disclosureRepo.SoftDelete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete disclosure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
