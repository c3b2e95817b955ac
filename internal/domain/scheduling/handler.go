package scheduling

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinix/clinix/internal/platform/auth"
	"github.com/clinix/clinix/pkg/pagination"
)

type Handler struct {
	shifts   *ShiftService
	appts    *AppointmentService
	validate *validator.Validate
}

func NewHandler(shifts *ShiftService, appts *AppointmentService) *Handler {
	return &Handler{
		shifts:   shifts,
		appts:    appts,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	shifts := api.Group("/shifts", auth.RequireRole(auth.RoleBranchManager))
	shifts.POST("", h.CreateShift)
	shifts.GET("", h.ListShifts)
	shifts.PUT("/:id", h.UpdateShift)
	shifts.DELETE("/:id", h.RemoveShift)

	appts := api.Group("/appointments", auth.RequireRole(auth.RoleBranchManager, auth.RoleReceptionist))
	appts.POST("", h.CreateAppointment)
	appts.GET("", h.ListAppointments)
	appts.GET("/:id", h.GetAppointment)
	appts.PUT("/:id", h.UpdateAppointment)
	appts.POST("/:id/status", h.ChangeAppointmentStatus)
	appts.POST("/:id/cancel", h.CancelAppointment)
	appts.DELETE("/:id", h.DeleteAppointment)
	appts.GET("/:id/history", h.AppointmentHistory)
}

// =========== Shifts ===========

type createShiftRequest struct {
	AssigneeID     uuid.UUID `json:"assignee_id" validate:"required"`
	RoomID         uuid.UUID `json:"room_id" validate:"required"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" validate:"required"`
	RecurrenceRule *string   `json:"recurrence_rule,omitempty"`
}

func (h *Handler) CreateShift(c echo.Context) error {
	var req createShiftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.ActorFromContext(c.Request().Context())
	created, err := h.shifts.Create(c.Request().Context(), actor, ShiftInput{
		AssigneeID:     req.AssigneeID,
		RoomID:         req.RoomID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		RecurrenceRule: req.RecurrenceRule,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

type updateShiftRequest struct {
	AssigneeID *uuid.UUID `json:"assignee_id,omitempty"`
	RoomID     *uuid.UUID `json:"room_id,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

func (h *Handler) UpdateShift(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateShiftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.ActorFromContext(c.Request().Context())
	sh, err := h.shifts.Update(c.Request().Context(), actor, id, ShiftUpdateInput{
		AssigneeID: req.AssigneeID,
		RoomID:     req.RoomID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sh)
}

func (h *Handler) RemoveShift(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.shifts.Remove(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListShifts(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ShiftFilter{}
	if v := c.QueryParam("branch_id"); v != "" {
		branchID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid branch_id")
		}
		f.BranchID = &branchID
	}
	if v := c.QueryParam("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &from
	}
	if v := c.QueryParam("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &to
	}

	actor := auth.ActorFromContext(c.Request().Context())
	items, total, err := h.shifts.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// =========== Appointments ===========

type createAppointmentRequest struct {
	PatientID uuid.UUID  `json:"patient_id" validate:"required"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
	RoomID    *uuid.UUID `json:"room_id,omitempty"`
	StartTime time.Time  `json:"start_time" validate:"required"`
	EndTime   time.Time  `json:"end_time" validate:"required"`
	Type      *string    `json:"type,omitempty"`
	Source    *string    `json:"source,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.ActorFromContext(c.Request().Context())
	detail, err := h.appts.Create(c.Request().Context(), actor, AppointmentInput{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		RoomID:    req.RoomID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Type:      req.Type,
		Source:    req.Source,
		Notes:     req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, detail)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.appts.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AppointmentFilter{}
	if v := c.QueryParam("status"); v != "" {
		status := AppointmentStatus(v)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = &status
	}
	for param, dst := range map[string]**uuid.UUID{
		"patient_id": &f.PatientID,
		"doctor_id":  &f.DoctorID,
		"room_id":    &f.RoomID,
	} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			*dst = &id
		}
	}
	if v := c.QueryParam("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &from
	}
	if v := c.QueryParam("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &to
	}

	items, total, err := h.appts.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateAppointmentRequest struct {
	DoctorID  *uuid.UUID         `json:"doctor_id,omitempty"`
	RoomID    *uuid.UUID         `json:"room_id,omitempty"`
	StartTime *time.Time         `json:"start_time,omitempty"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	Status    *AppointmentStatus `json:"status,omitempty"`
	Type      *string            `json:"type,omitempty"`
	Notes     *string            `json:"notes,omitempty"`
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.ActorFromContext(c.Request().Context())
	detail, err := h.appts.Update(c.Request().Context(), actor, id, AppointmentUpdateInput{
		DoctorID:  req.DoctorID,
		RoomID:    req.RoomID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    req.Status,
		Type:      req.Type,
		Notes:     req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

type changeStatusRequest struct {
	Status AppointmentStatus `json:"status" validate:"required"`
}

func (h *Handler) ChangeAppointmentStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.ActorFromContext(c.Request().Context())
	a, err := h.appts.ChangeStatus(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.ActorFromContext(c.Request().Context())
	a, err := h.appts.Cancel(c.Request().Context(), actor, id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.appts.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AppointmentHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	logs, err := h.appts.StatusHistory(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, logs)
}

// httpError maps kinded scheduling failures to HTTP status codes.
func httpError(err error) error {
	switch KindOf(err) {
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case KindValidation, KindBadRequest:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case KindForbidden:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
