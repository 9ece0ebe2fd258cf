package specimen

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/platform/auth"
	"github.com/lims/lims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "lab_tech", "senior_tech", "pathologist", "clinical_reviewer"))
	readGroup.GET("/specimens", h.ListSpecimens)
	readGroup.GET("/specimens/:id", h.GetSpecimen)

	writeGroup := api.Group("", auth.RequireRole("admin", "lab_tech", "senior_tech"))
	writeGroup.POST("/specimens", h.RecordCollection)
	writeGroup.POST("/specimens/:id/receive", h.RecordReception)
	writeGroup.POST("/specimens/:id/quality-checks", h.RecordQualityChecks)
	writeGroup.POST("/specimens/:id/processing/start", h.StartProcessing)
	writeGroup.POST("/specimens/:id/processing/complete", h.CompleteProcessing)
	writeGroup.POST("/specimens/:id/dispose", h.Dispose)
}

func (h *Handler) RecordCollection(c echo.Context) error {
	var sp Specimen
	if err := c.Bind(&sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if sp.CollectedBy == nil {
		if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
			sp.CollectedBy = &uid
		}
	}
	if err := h.svc.RecordCollection(c.Request().Context(), &sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) GetSpecimen(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sp, err := h.svc.GetSpecimen(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "specimen not found")
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) ListSpecimens(c echo.Context) error {
	pg := pagination.FromContext(c)
	if barcode := c.QueryParam("barcode"); barcode != "" {
		sp, err := h.svc.GetByBarcode(c.Request().Context(), barcode)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "specimen not found")
		}
		return c.JSON(http.StatusOK, pagination.NewResponse([]*Specimen{sp}, 1, pg.Limit, pg.Offset))
	}
	if status := c.QueryParam("quality_status"); status != "" {
		items, total, err := h.svc.ListByQualityStatus(c.Request().Context(), status, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id, barcode or quality_status is required")
	}
	pid, err := uuid.Parse(patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RecordReception(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		ReceivedAt *time.Time `json:"received_at,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}
	sp, err := h.svc.RecordReception(c.Request().Context(), id, userID, body.ReceivedAt)
	if err != nil {
		return specimenError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) RecordQualityChecks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var checks QualityChecks
	if err := c.Bind(&checks); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp, err := h.svc.RecordQualityChecks(c.Request().Context(), id, checks)
	if err != nil {
		return specimenError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) StartProcessing(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sp, err := h.svc.StartProcessing(c.Request().Context(), id)
	if err != nil {
		return specimenError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) CompleteProcessing(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sp, err := h.svc.CompleteProcessing(c.Request().Context(), id)
	if err != nil {
		return specimenError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) Dispose(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sp, err := h.svc.Dispose(c.Request().Context(), id)
	if err != nil {
		return specimenError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func specimenError(err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
