package web

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// Error texts of the proxy endpoints.
const (
	asrNoFile = "No file provided"
	asrNoKey  = "No API key"
	asrFailed = "ASR failed"

	ttsNoText   = "The scholar demands actual text to speak, yea"
	ttsNoKey    = "ElevenLabs API key is missing! Configure it in your .env file, yea"
	ttsUpstream = "The scholar's voice has failed! ElevenLabs is displeased with us, yea"
	ttsFailed   = "The voice synthesis has failed! Try again, if you dare, yea"
)

// ChatResponse is the body of every /api/chat answer.
type ChatResponse struct {
	Response string `json:"response"`
}

// SpeechRequest is the request body of /api/tts.
type SpeechRequest struct {
	Text string `json:"text"`
}

// handleChat answers {message, history} with {response}. It always answers
// 200; failures become in-character replies.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		s.logger.Warn("chat proxy: bad request", "error", err)
		return c.JSON(ChatResponse{Response: chat.ReplyBroken})
	}

	reply, err := s.providers.Chat.Reply(c.UserContext(), &req)
	if err != nil {
		s.logger.Warn("chat proxy failed", "error", err)
		return c.JSON(ChatResponse{Response: chat.FixedReply(err)})
	}
	return c.JSON(ChatResponse{Response: reply.Text})
}

// handleASR transcribes the multipart "file" field.
func (s *Server) handleASR(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": asrNoFile})
	}
	if s.cfg.ASR == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": asrNoKey})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": asrFailed})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": asrFailed})
	}

	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = audioio.PreferredMIMETypes[0]
	}

	res, err := s.cfg.ASR.Transcribe(c.UserContext(), &audioio.Recording{Data: data, MIMEType: mime})
	if err != nil {
		s.logger.Warn("asr proxy failed", "error", err)
		var apiErr *stt.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = asrFailed
			}
			return c.Status(apiErr.StatusCode).JSON(fiber.Map{"error": msg})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": asrFailed})
	}
	return c.JSON(fiber.Map{"text": res.Text})
}

// handleTTS synthesizes {text} and answers with the audio.
func (s *Server) handleTTS(c *fiber.Ctx) error {
	var req SpeechRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": ttsFailed})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ttsNoText})
	}
	if s.cfg.Speech == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": ttsNoKey})
	}

	res, err := s.cfg.Speech.Synthesize(c.UserContext(), req.Text)
	if err != nil {
		s.logger.Warn("tts proxy failed", "error", err)
		var apiErr *tts.APIError
		if errors.As(err, &apiErr) {
			return c.Status(apiErr.StatusCode).JSON(fiber.Map{"error": ttsUpstream})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": ttsFailed})
	}

	c.Set(fiber.HeaderContentType, res.Clip().MIMEType())
	return c.Send(res.Audio)
}
