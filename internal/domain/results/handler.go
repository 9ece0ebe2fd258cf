package results

import (
	"errors"
	"net/http"

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
	readGroup.GET("/results", h.ListResults)
	readGroup.GET("/results/:id", h.GetResult)
	readGroup.GET("/results/billable", h.ListBillable)

	entryGroup := api.Group("", auth.RequireRole("admin", "lab_tech", "senior_tech"))
	entryGroup.POST("/results", h.EnterResult)
	entryGroup.POST("/results/:id/report", h.MarkReportGenerated)

	// Any validation role may submit a step; the service enforces
	// level ordering.
	validateGroup := api.Group("", auth.RequireRole("admin", "lab_tech", "senior_tech", "pathologist", "clinical_reviewer"))
	validateGroup.POST("/results/:id/validations", h.Validate)

	amendGroup := api.Group("", auth.RequireRole("admin", "pathologist"))
	amendGroup.POST("/results/:id/amend", h.Amend)
}

func (h *Handler) EnterResult(c echo.Context) error {
	var input EntryInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}
	input.EnteredBy = userID
	result, params, err := h.svc.EnterResult(c.Request().Context(), input)
	if err != nil {
		return resultError(err)
	}
	return c.JSON(http.StatusCreated, ResultDetail{Result: result, Parameters: params})
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetResult(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "result not found")
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	if specimenID := c.QueryParam("specimen_id"); specimenID != "" {
		sid, err := uuid.Parse(specimenID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specimen_id")
		}
		items, err := h.svc.ListBySpecimen(c.Request().Context(), sid)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
	}
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id or specimen_id is required")
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

func (h *Handler) Validate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var input ValidationInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}
	input.ValidatedBy = userID
	result, err := h.svc.Validate(c.Request().Context(), id, input)
	if err != nil {
		return resultError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Amend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var input AmendInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}
	input.AmendedBy = userID
	amendment, err := h.svc.Amend(c.Request().Context(), id, input)
	if err != nil {
		return resultError(err)
	}
	return c.JSON(http.StatusCreated, amendment)
}

func (h *Handler) MarkReportGenerated(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.MarkReportGenerated(c.Request().Context(), id)
	if err != nil {
		return resultError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListBillable(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBillable(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// resultError maps the error taxonomy onto HTTP statuses so callers
// always see which invariant was violated.
func resultError(err error) error {
	var (
		orderErr    *ValidationOrderError
		conflictErr *ConflictError
		missingErr  *MissingDataError
		gateErr     *SpecimenGateFailure
	)
	switch {
	case errors.As(err, &orderErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, orderErr.Error())
	case errors.As(err, &conflictErr):
		return echo.NewHTTPError(http.StatusConflict, conflictErr.Error())
	case errors.As(err, &missingErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, missingErr.Error())
	case errors.As(err, &gateErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, gateErr.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
