package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bimmerbailey/streamchat/internal/credential"
	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/prompt"
	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/gin-gonic/gin"
)

type sessionView struct {
	ID                  string           `json:"id"`
	Settings            session.Settings `json:"settings"`
	DefaultSystemPrompt string           `json:"default_system_prompt"`
	Transcript          []session.Turn   `json:"transcript"`
	Busy                bool             `json:"busy"`
	Models              []string         `json:"models"`
}

func viewOf(conv *session.Conversation) sessionView {
	turns := conv.Transcript()
	if turns == nil {
		turns = []session.Turn{}
	}
	return sessionView{
		ID:                  conv.ID,
		Settings:            conv.Settings(),
		DefaultSystemPrompt: conv.DefaultSystemPrompt(),
		Transcript:          turns,
		Busy:                conv.Busy(),
		Models:              llm.Models(),
	}
}

// blankView is what a browser without a conversation sees. Nothing is
// stored until it changes settings or sends a message.
func (s *Server) blankView() sessionView {
	settings := s.store.Defaults()
	if strings.TrimSpace(settings.SystemPrompt) == "" {
		settings.SystemPrompt = prompt.DefaultSystemPrompt
	}
	return sessionView{
		Settings:            settings,
		DefaultSystemPrompt: settings.SystemPrompt,
		Transcript:          []session.Turn{},
		Models:              llm.Models(),
	}
}

func (s *Server) view(c *gin.Context) sessionView {
	if conv, ok := s.existing(c); ok {
		return viewOf(conv)
	}
	return s.blankView()
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Models":   llm.Models(),
		"Settings": s.view(c).Settings,
		"KeyEnv":   s.cfg.LLM.KeyEnv(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"conversations": s.store.Len(),
		"timestamp":     time.Now(),
	})
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.view(c))
}

func (s *Server) putSettings(c *gin.Context) {
	conv := s.conversation(c)

	var settings session.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := conv.UpdateSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(conv))
}

func (s *Server) reset(c *gin.Context) {
	conv, ok := s.existing(c)
	if !ok {
		c.JSON(http.StatusOK, s.blankView())
		return
	}
	conv.ResetConversation()
	c.JSON(http.StatusOK, viewOf(conv))
}

// credentialView is the part of the diagnostics a browser may see. Paths
// and the rest of the env file stay with the check command.
type credentialView struct {
	KeyEnv        string          `json:"key_env"`
	EnvFileExists bool            `json:"env_file_exists"`
	Credential    credential.Info `json:"credential"`
}

func (s *Server) getCredential(c *gin.Context) {
	keyEnv := s.cfg.LLM.KeyEnv()
	d := s.resolver.Diagnose(keyEnv)
	c.JSON(http.StatusOK, credentialView{
		KeyEnv:        keyEnv,
		EnvFileExists: d.EnvFileExists,
		Credential:    d.Credential,
	})
}

// postMessage runs one turn and streams its events. Validation failures
// that happen before the first event are answered with a JSON error instead.
func (s *Server) postMessage(c *gin.Context) {
	conv := s.conversation(c)

	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	streaming := false
	render := session.RenderFunc(func(e session.Event) error {
		if !streaming {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			streaming = true
		}
		c.SSEvent(string(e.Kind), e)
		c.Writer.Flush()
		return c.Request.Context().Err()
	})

	err := conv.Send(c.Request.Context(), req.Text, s.openGateway, render)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrTurnInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case !streaming && errors.Is(err, session.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrRenderFailed):
		s.logger.Debug("client went away during a turn", "conversation", conv.ID, "error", err)
	default:
		// Already rendered to the client as an error event.
		s.logger.Debug("turn ended with error", "conversation", conv.ID, "category", llm.CategoryOf(err).String())
	}
}
