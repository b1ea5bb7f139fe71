// Package webhook serves Telegram webhook deliveries and answers each one
// inline with a single sendMessage call in the response body.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/callerbot/bot/flow"
	"github.com/m3rciful/callerbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// SecretHeader carries the secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const shutdownTimeout = 10 * time.Second

// Processor turns one event into one reply.
type Processor interface {
	Process(ctx context.Context, ev flow.Event) flow.Reply
}

// Options configures the server.
type Options struct {
	Addr        string
	Path        string
	SecretToken string
}

// Server is the webhook HTTP endpoint.
type Server struct {
	proc   Processor
	opts   Options
	router *gin.Engine
}

// sendMessage is a webhook reply: Telegram executes the method in the body.
type sendMessage struct {
	Method    string `json:"method"`
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// New builds the router. Path defaults to /telegram/webhook.
func New(proc Processor, opts Options) *Server {
	if opts.Path == "" {
		opts.Path = "/telegram/webhook"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{proc: proc, opts: opts, router: router}
	router.GET("/health", s.handleHealth)
	router.POST(opts.Path, s.handleUpdate)
	return s
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http", "server.start",
			slog.String("listen", s.opts.Addr),
			slog.String("path", s.opts.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	logger.Info(ctx, "http", "server.stop")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpdate(c *gin.Context) {
	if s.opts.SecretToken != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.SecretToken)) != 1 {
			logger.Warn(c.Request.Context(), "http", "update.reject", slog.String("reason", "secret_token"))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	var upd tele.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		logger.Warn(c.Request.Context(), "http", "update.reject",
			slog.String("reason", "decode"),
			slog.String("err", err.Error()),
		)
		// A non-2xx answer makes Telegram redeliver the same broken body.
		c.Status(http.StatusOK)
		return
	}

	ev, ok := EventFromUpdate(upd)
	if !ok {
		logger.Debug(c.Request.Context(), "http", "update.skip", slog.Int("update_id", upd.ID))
		c.Status(http.StatusOK)
		return
	}

	rid := logger.BuildRID(ev.UpdateID, ev.ChatID, ev.UserID)
	ctx := logger.WithRID(c.Request.Context(), rid)
	ctx = logger.WithUpdateMeta(ctx, ev.UpdateID, ev.UserID, ev.ChatID)

	reply := s.proc.Process(ctx, ev)
	if reply.Empty() {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, sendMessage{
		Method:    "sendMessage",
		ChatID:    ev.ChatID,
		Text:      reply.Text,
		ParseMode: reply.ParseMode,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if !logger.ShouldSampleDebug() {
			return
		}
		logger.Debug(c.Request.Context(), "http", "request.done",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("http_code", c.Writer.Status()),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)
	}
}
