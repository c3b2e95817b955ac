package directory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinix/clinix/internal/platform/auth"
	"github.com/clinix/clinix/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleBranchManager, auth.RoleReceptionist, auth.RoleDoctor))
	g.GET("/branches", h.ListBranches)
	g.GET("/branches/:id", h.GetBranch)
	g.GET("/rooms/:id", h.GetRoom)
	g.GET("/staff/:id", h.GetStaff)
	g.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) ListBranches(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBranches(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBranch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBranch(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(err, ErrBranchNotFound, "branch not found")
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rm, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(err, ErrRoomNotFound, "room not found")
	}
	return c.JSON(http.StatusOK, rm)
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	st, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(err, ErrStaffNotFound, "staff member not found")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(err, ErrPatientNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func notFoundOr500(err, sentinel error, msg string) error {
	if errors.Is(err, sentinel) {
		return echo.NewHTTPError(http.StatusNotFound, msg)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
