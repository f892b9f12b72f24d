package claim

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/revclarity/revclarity/internal/domain/patient"
	"github.com/revclarity/revclarity/pkg/pagination"
)

type Handler struct {
	svc      *Service
	patients *patient.Service
}

func NewHandler(svc *Service, patients *patient.Service) *Handler {
	return &Handler{svc: svc, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/claims", h.ListClaims)
	api.POST("/claims/upload", h.UploadClaim)
	api.GET("/claims/:id", h.GetClaim)
	api.PUT("/claims/:id", h.UpdateClaim)
	api.POST("/claims/:id/submit", h.SubmitClaim)
	api.POST("/claims/:id/resubmit", h.ResubmitClaim)
	api.POST("/claims/:id/simulate-outcome", h.SimulateOutcome)
	api.GET("/claims/:id/documents", h.ListDocuments)
	api.GET("/claims/:id/export/cms1500", h.ExportCMS1500)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrClaimNotFound), errors.Is(err, patient.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotEditable), errors.Is(err, ErrSimulationInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ListFilter{Status: c.QueryParam("status")}
	if pid := c.QueryParam("patient_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Submit(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ResubmitClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Resubmit(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

// SimulateOutcome dispatches an outcome simulation and returns 202. The
// Content-Location header names the claim resource so callers know what to
// poll for the result.
func (h *Handler) SimulateOutcome(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.SimulateOutcome(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Content-Location", "/api/v1/claims/"+id.String())
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "simulation_dispatched",
		"poll":   "/api/v1/claims/" + id.String(),
	})
}

func (h *Handler) UploadClaim(c echo.Context) error {
	pid, err := uuid.Parse(c.FormValue("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	if _, err := h.patients.Get(c.Request().Context(), pid); err != nil {
		return httpError(err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fhs := form.File["files"]
	if len(fhs) == 0 {
		fhs = form.File["file"]
	}
	if len(fhs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one file is required")
	}

	var uploads []UploadFile
	for _, fh := range fhs {
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer src.Close()
		uploads = append(uploads, UploadFile{
			FileName: fh.Filename,
			Purpose:  patient.PurposeEncounterNote,
			Content:  src,
		})
	}

	eligibility := h.patients.Eligibility(c.Request().Context(), pid)
	cl, err := h.svc.Upload(c.Request().Context(), pid, eligibility, uploads)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Content-Location", "/api/v1/claims/"+cl.ID.String())
	return c.JSON(http.StatusAccepted, cl)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	docs, err := h.svc.Documents(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) ExportCMS1500(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	in := CMS1500Input{}
	if p, err := h.patients.Get(c.Request().Context(), cl.PatientID); err == nil {
		in.PatientName = p.FullName()
		in.PatientDOB = p.DateOfBirth
		if p.AddressLine != nil {
			in.Address = *p.AddressLine
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="cms1500_`+id.String()+`.txt"`)
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(RenderCMS1500(cl, in)))
}
