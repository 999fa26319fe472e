package gateway

import (
	"context"
	"net/http"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/reconcile"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// respondError maps the error taxonomy onto a status code.
func (s *Server) respondError(c echo.Context, err error) error {
	status := errorsx.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api_request_failed", "path", c.Path(), "error", err)
	}
	body := errorBody{Error: err.Error()}
	if r := errorsx.Reason(err); r != errorsx.ReasonUnknown {
		body.Reason = string(r)
	}
	return c.JSON(status, body)
}

func (s *Server) syncEngine() (*reconcile.Engine, error) {
	if s.sync == nil || !s.sync.Configured() {
		return nil, errorsx.NotConfigured("providers.vapi")
	}
	return s.sync, nil
}

func (s *Server) syncStep(step string) echo.HandlerFunc {
	return func(c echo.Context) error {
		engine, err := s.syncEngine()
		if err != nil {
			return s.respondError(c, err)
		}
		var run func(context.Context, string) (domain.SyncResult, error)
		switch step {
		case reconcile.StepPhonesFromRemote:
			run = engine.ImportPhoneNumbers
		case reconcile.StepPhonesToRemote:
			run = engine.ExportPhoneNumbers
		case reconcile.StepAgentsFromRemote:
			run = engine.ImportAssistants
		default:
			run = engine.ExportAgents
		}
		res, err := run(c.Request().Context(), Tenant(c))
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func (s *Server) FullSync(c echo.Context) error {
	engine, err := s.syncEngine()
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, engine.FullSync(c.Request().Context(), Tenant(c)))
}

func (s *Server) SyncStatus(c echo.Context) error {
	engine, err := s.syncEngine()
	if err != nil {
		return s.respondError(c, err)
	}
	st, err := engine.Status(c.Request().Context(), Tenant(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) PlaceOutboundCall(c echo.Context) error {
	if s.dialer == nil {
		return s.respondError(c, errorsx.NotConfigured("outbound calling"))
	}
	var req session.OutboundRequest
	if err := c.Bind(&req); err != nil {
		return s.respondError(c, errorsx.Invalid("body", "malformed JSON"))
	}
	if req.PhoneNumber == "" || req.AgentID == "" {
		return s.respondError(c, errorsx.Invalid("phoneNumber", "phone number and agent id are required"))
	}
	req.TenantID = Tenant(c)
	res, err := s.dialer.PlaceOutboundCall(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
