package scheduling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinix/clinix/internal/platform/auth"
)

func newTestServer(env *testEnv, actor auth.Actor) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithActor(c.Request().Context(), actor)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h := NewHandler(env.shiftSvc, env.apptSvc)
	h.RegisterRoutes(e.Group("/api/v1"))
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStatusMapping(t *testing.T) {
	env := newTestEnv()
	e := newTestServer(env, env.admin)

	doctor := env.dir.addDoctor(env.branchID)
	room := env.dir.addRoom(env.branchID)
	patient := env.dir.addPatient(env.branchID)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	end := start.Add(time.Hour)

	shiftBody := fmt.Sprintf(`{"assignee_id":%q,"room_id":%q,"start_time":%q,"end_time":%q}`,
		doctor.ID, room.ID, start.Format(time.RFC3339), end.Format(time.RFC3339))

	t.Run("create shift returns 201", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/shifts", shiftBody)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("conflicting shift returns 409", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/shifts", shiftBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields return 400", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/shifts", `{"room_id":"`+room.ID.String()+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown appointment returns 404", func(t *testing.T) {
		rec := doJSON(e, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		rec := doJSON(e, http.MethodGet, "/api/v1/appointments/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("appointment lifecycle over http", func(t *testing.T) {
		apptBody := fmt.Sprintf(`{"patient_id":%q,"start_time":%q,"end_time":%q}`,
			patient.ID, start.Add(2*time.Hour).Format(time.RFC3339), end.Add(2*time.Hour).Format(time.RFC3339))
		rec := doJSON(e, http.MethodPost, "/api/v1/appointments", apptBody)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created AppointmentDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, StatusScheduled, created.Status)

		rec = doJSON(e, http.MethodPost, "/api/v1/appointments/"+created.ID.String()+"/status", `{"status":"confirmed"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(e, http.MethodPost, "/api/v1/appointments/"+created.ID.String()+"/cancel", `{"reason":"patient request"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(e, http.MethodPost, "/api/v1/appointments/"+created.ID.String()+"/cancel", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doJSON(e, http.MethodGet, "/api/v1/appointments/"+created.ID.String()+"/history", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var logs []*AppointmentStatusLog
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
		assert.Len(t, logs, 3)

		rec = doJSON(e, http.MethodDelete, "/api/v1/appointments/"+created.ID.String(), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestHandlerRoleEnforcement(t *testing.T) {
	env := newTestEnv()
	doctorActor := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor, BranchID: env.branchID}
	e := newTestServer(env, doctorActor)

	t.Run("doctors cannot manage shifts", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/shifts", `{}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("doctors cannot book appointments", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/v1/appointments", `{}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandlerBranchScope(t *testing.T) {
	env := newTestEnv()
	otherBranch := uuid.New()
	doctor := env.dir.addDoctor(otherBranch)
	room := env.dir.addRoom(otherBranch)

	manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: env.branchID}
	e := newTestServer(env, manager)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	body := fmt.Sprintf(`{"assignee_id":%q,"room_id":%q,"start_time":%q,"end_time":%q}`,
		doctor.ID, room.ID, start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339))

	rec := doJSON(e, http.MethodPost, "/api/v1/shifts", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
