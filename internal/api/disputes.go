package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/settleline/internal/api/auth"
	"github.com/settleline/internal/dispute"
)

type createDisputeRequest struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Plaintiff       dispute.Party `json:"plaintiff"`
	RespondentEmail string        `json:"respondent_email"`
	RespondentName  string        `json:"respondent_name"`
	// IdentityDocument is the plaintiff's ID document, base64-encoded.
	IdentityDocument []byte `json:"identity_document"`
}

func (s *Server) createDispute(c echo.Context) error {
	actor := auth.GetActor(c)

	var req createDisputeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := s.deps.Machine.Create(c.Request().Context(), *actor, dispute.CreateParams{
		Title:            req.Title,
		Description:      req.Description,
		Plaintiff:        req.Plaintiff,
		RespondentEmail:  req.RespondentEmail,
		RespondentName:   req.RespondentName,
		IdentityDocument: req.IdentityDocument,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (s *Server) getDispute(c echo.Context) error {
	actor := auth.GetActor(c)
	d, err := s.deps.Machine.Get(c.Request().Context(), *actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) acceptDispute(c echo.Context) error {
	actor := auth.GetActor(c)

	var details dispute.Party
	if err := c.Bind(&details); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := s.deps.Machine.Accept(c.Request().Context(), *actor, c.Param("id"), details)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) sendMessage(c echo.Context) error {
	actor := auth.GetActor(c)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.deps.Machine.SendMessage(c.Request().Context(), *actor, c.Param("id"), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) listMessages(c echo.Context) error {
	actor := auth.GetActor(c)
	msgs, err := s.deps.Machine.Messages(c.Request().Context(), *actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

type submitDecisionRequest struct {
	// Choice is null for no decision, -1 to reject all proposals, or a
	// zero-based proposal index.
	Choice dispute.Choice `json:"choice"`
}

func (s *Server) submitDecision(c echo.Context) error {
	actor := auth.GetActor(c)

	var req submitDecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := s.deps.Machine.SubmitDecision(c.Request().Context(), *actor, c.Param("id"), req.Choice)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type signAgreementRequest struct {
	SignatureRef string `json:"signature_ref"`
}

func (s *Server) signAgreement(c echo.Context) error {
	actor := auth.GetActor(c)

	var req signAgreementRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := s.deps.Machine.SignAgreement(c.Request().Context(), *actor, c.Param("id"), req.SignatureRef)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) requestReanalysis(c echo.Context) error {
	actor := auth.GetActor(c)
	id := c.Param("id")

	d, err := s.deps.Machine.RequestReanalysis(c.Request().Context(), *actor, id)
	if err != nil {
		return httpError(err)
	}

	// The reset succeeded; the fresh run happens in the background.
	if s.deps.Analysis != nil {
		if err := s.deps.Analysis.EnqueueAnalysis(c.Request().Context(), id, true); err != nil {
			c.Logger().Warnf("failed to enqueue reanalysis for %s: %v", id, err)
		}
	}
	return c.JSON(http.StatusAccepted, d)
}

func (s *Server) approveResolution(c echo.Context) error {
	actor := auth.GetActor(c)
	d, err := s.deps.Machine.ApproveResolution(c.Request().Context(), *actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) forwardToCourt(c echo.Context) error {
	actor := auth.GetActor(c)

	var referral dispute.CourtReferral
	if err := c.Bind(&referral); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := s.deps.Machine.ForwardToCourt(c.Request().Context(), *actor, c.Param("id"), referral)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) listEvents(c echo.Context) error {
	if s.deps.Events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event polling requires a database-backed event sink")
	}

	actor := auth.GetActor(c)
	id := c.Param("id")

	// Reuse the state machine's access check before exposing the stream.
	if _, err := s.deps.Machine.Get(c.Request().Context(), *actor, id); err != nil {
		return httpError(err)
	}

	evts, err := s.deps.Events.Recent(c.Request().Context(), id, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load events")
	}
	return c.JSON(http.StatusOK, evts)
}
