package web

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceturn/pkg/trace"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// SessionView is the REST representation of a session.
type SessionView struct {
	ID        string    `json:"id"`
	Created   time.Time `json:"created"`
	Connected bool      `json:"connected"`
	voice.Snapshot
}

// TextRequest is the request body for submitting typed text
type TextRequest struct {
	Text string `json:"text"`
}

func view(sess *Session) SessionView {
	return SessionView{
		ID:        sess.ID,
		Created:   sess.Created,
		Connected: sess.Connected(),
		Snapshot:  sess.Controller.Snapshot(),
	}
}

func stateJSON(c *fiber.Ctx, status int, sess *Session) error {
	return c.Status(status).JSON(fiber.Map{"state": sess.Controller.State()})
}

// handleCreateSession opens a session
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess, err := s.registry.Create()
	if err != nil {
		s.logger.Warn("create session", "error", err)
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": sess.ID})
}

// handleGetSession returns state, history and provider health
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(view(sess))
}

// handleDeleteSession closes a session
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.registry.Remove(c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSubmitText starts a turn from typed text
func (s *Server) handleSubmitText(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	var req TextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := sess.Controller.SubmitText(c.UserContext(), req.Text); err != nil {
		return errorJSON(c, err)
	}
	return stateJSON(c, fiber.StatusAccepted, sess)
}

// handleToggle starts or stops recording, or barges in on speech
func (s *Server) handleToggle(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	if err := sess.Controller.Toggle(c.UserContext()); err != nil {
		return errorJSON(c, err)
	}
	return stateJSON(c, fiber.StatusAccepted, sess)
}

// handleCancel abandons the turn in progress
func (s *Server) handleCancel(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	sess.Controller.Cancel()
	return stateJSON(c, fiber.StatusOK, sess)
}

// handleClear empties the conversation and stops any speech
func (s *Server) handleClear(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	sess.Controller.Clear()
	return stateJSON(c, fiber.StatusOK, sess)
}

// handleTrace returns the session's recent pipeline events
func (s *Server) handleTrace(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	events := sess.Trace.Events()
	if events == nil {
		events = []trace.Event{}
	}
	return c.JSON(fiber.Map{"events": events})
}
