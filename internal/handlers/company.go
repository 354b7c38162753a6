package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/services"
)

type CompanyHandler struct {
	log      *logger.Logger
	resolver services.CompanyResolver
}

func NewCompanyHandler(log *logger.Logger, resolver services.CompanyResolver) *CompanyHandler {
	return &CompanyHandler{
		log:      log.With("handler", "CompanyHandler"),
		resolver: resolver,
	}
}

// GET /api/companies/:id
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_company_id", errors.New("id must be a UUID"))
		return
	}

	company, err := h.resolver.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "company_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "company_lookup_failed", err)
		return
	}
	RespondOK(c, company)
}
