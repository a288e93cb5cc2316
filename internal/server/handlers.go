package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/mbd888/tmxauth/internal/journey"
	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/state"
	"github.com/mbd888/tmxauth/internal/validation"
)

// startAttemptRequest is the optional body of POST /v1/journeys/:name/attempts.
type startAttemptRequest struct {
	// Forwarded to the session query when the journey enables it.
	SessionQueryParameters map[string]string `json:"session_query_parameters" binding:"omitempty,max=50,dive,keys,min=1,max=64,endkeys,max=1024"`
}

type callbackInput struct {
	Type  string `json:"type" binding:"required,oneof=HiddenValueCallback ScriptTextOutputCallback"`
	ID    string `json:"id" binding:"max=128"`
	Value string `json:"value"`
}

// continueAttemptRequest is the body of POST /v1/attempts/:id/callbacks.
type continueAttemptRequest struct {
	Callbacks []callbackInput `json:"callbacks" binding:"required,min=1,max=10,dive"`
}

// AttemptResponse is the public view of an attempt. Shared state is never
// returned: it holds the risk assessment.
type AttemptResponse struct {
	ID        string           `json:"id"`
	Journey   string           `json:"journey"`
	Status    journey.Status   `json:"status"`
	Node      string           `json:"node,omitempty"`
	Callbacks []nodes.Callback `json:"callbacks,omitempty"`
	Path      []journey.Step   `json:"path"`
	ErrorKind string           `json:"error_kind,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

func attemptResponse(a *journey.Attempt) AttemptResponse {
	path := a.Path
	if path == nil {
		path = []journey.Step{}
	}
	return AttemptResponse{
		ID:        a.ID,
		Journey:   a.Journey,
		Status:    a.Status,
		Node:      a.Current,
		Callbacks: a.Callbacks,
		Path:      path,
		ErrorKind: a.ErrorKind,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		ExpiresAt: a.ExpiresAt,
	}
}

// JourneyResponse describes a loaded journey.
type JourneyResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Start       string             `json:"start"`
	Nodes       []journey.NodeInfo `json:"nodes"`
}

func (s *Server) listJourneys(c *gin.Context) {
	journeys := s.engine.Journeys()
	out := make([]JourneyResponse, 0, len(journeys))
	for _, j := range journeys {
		out = append(out, JourneyResponse{
			Name:        j.Name,
			Description: j.Description,
			Start:       j.Start,
			Nodes:       j.Nodes(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"journeys": out, "count": len(out)})
}

func (s *Server) startAttempt(c *gin.Context) {
	var req startAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid_request", err.Error())
		return
	}

	var seed *state.State
	if len(req.SessionQueryParameters) > 0 {
		seed = state.New()
		if err := seed.Set(state.SessionQueryParameters, req.SessionQueryParameters); err != nil {
			badRequest(c, "invalid_request", err.Error())
			return
		}
	}

	a, err := s.engine.Start(c.Request.Context(), c.Param("name"), seed)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attemptResponse(a))
}

func (s *Server) continueAttempt(c *gin.Context) {
	var req continueAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}

	callbacks := make([]nodes.Callback, 0, len(req.Callbacks))
	for _, in := range req.Callbacks {
		checks := []func() *validation.ValidationError{
			validation.MaxLength("value", in.Value, validation.MaxCallbackValueLength),
			validation.NoControlChars("value", in.Value),
			validation.NoControlChars("id", in.ID),
		}
		// Hidden values are sent pre-filled; an empty one was never filled in.
		if in.Type == string(nodes.CallbackHiddenValue) {
			checks = append(checks, validation.Required("value", in.Value))
		}
		if errs := validation.Validate(checks...); len(errs) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_callbacks",
				"message": errs.Error(),
				"details": errs,
			})
			return
		}
		callbacks = append(callbacks, nodes.Callback{
			Type:  nodes.CallbackType(in.Type),
			ID:    in.ID,
			Value: in.Value,
		})
	}

	a, err := s.engine.Continue(c.Request.Context(), c.Param("id"), callbacks)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptResponse(a))
}

func (s *Server) getAttempt(c *gin.Context) {
	a, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptResponse(a))
}

func badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
}

// writeError maps engine errors to status codes. Anything unrecognized is a
// 500 whose detail stays in the log.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "An unexpected error occurred"

	switch {
	case errors.Is(err, journey.ErrJourneyNotFound):
		status, code, message = http.StatusNotFound, "journey_not_found", "No journey with that name is loaded"
	case errors.Is(err, journey.ErrAttemptNotFound):
		status, code, message = http.StatusNotFound, "attempt_not_found", "Attempt not found or expired"
	case errors.Is(err, journey.ErrAttemptExpired):
		status, code, message = http.StatusGone, "attempt_expired", "Attempt has expired"
	case errors.Is(err, journey.ErrAttemptFinished):
		status, code, message = http.StatusConflict, "attempt_finished", "Attempt has already finished"
	case errors.Is(err, journey.ErrSeedNotAllowed), errors.Is(err, journey.ErrInvalidSeed):
		status, code, message = http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, journey.ErrNoCallbacks), errors.Is(err, journey.ErrUnexpectedInput):
		status, code, message = http.StatusBadRequest, "invalid_callbacks", err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code, message = http.StatusServiceUnavailable, "unavailable", "Request was cancelled before the attempt could be processed"
	}

	if status >= 500 {
		logging.L(c.Request.Context()).Error("attempt request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
