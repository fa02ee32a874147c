package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyguide-quiz/internal/app"
	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

const loadKey = "load"

type WSHandler struct {
	service  *app.QuizService
	verifier *auth.Verifier
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, verifier *auth.Verifier, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service:  service,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID domain.QuestionID `json:"questionId"`
	Option     string            `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServeWS upgrades the request and plays one quiz over the connection. The
// question set is fetched as soon as the socket opens.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("file")
	if filename == "" {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	creds, err := h.verifier.FromRequest(r)
	if err != nil {
		h.log.Debug("ws rejected", zap.Error(err))
		http.Error(w, domain.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		h:        h,
		creds:    creds,
		filename: filename,
		count:    count,
		guard:    app.NewRequestGuard(),
		send:     make(chan outboundMessage[any], 16),
		closing:  make(chan struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				conn.Close()
				return
			}
		}
	}()

	c.load(ctx)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.handle(ctx, inbound)
	}

	cancel()
	close(c.closing)
	c.wg.Wait()
	close(c.send)
	<-writerDone

	if id := c.sessionID(); id != "" {
		if err := h.service.Discard(context.Background(), creds, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			h.log.Warn("discard session", zap.String("session", id), zap.Error(err))
		}
	}
}

// wsConn is the per-connection state. Fetches run on their own goroutines so
// the read loop keeps serving; a newer load supersedes any older one.
type wsConn struct {
	h        *WSHandler
	creds    auth.Credentials
	filename string
	count    int
	guard    *app.RequestGuard

	mu sync.Mutex
	id string

	wg      sync.WaitGroup
	send    chan outboundMessage[any]
	closing chan struct{}
}

func (c *wsConn) handle(ctx context.Context, inbound inboundMessage) {
	switch inbound.Type {
	case "regenerate":
		c.load(ctx)
		return
	case "answer", "next", "previous", "submit":
	default:
		c.fail(errors.New("unsupported message type"))
		return
	}

	id := c.sessionID()
	if id == "" {
		c.fail(errors.New("quiz is not loaded"))
		return
	}

	var (
		view app.SessionView
		err  error
	)
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.fail(errors.New("invalid answer payload"))
			return
		}
		view, err = c.h.service.Answer(ctx, c.creds, id, payload.QuestionID, payload.Option)
	case "next":
		view, err = c.h.service.Advance(ctx, c.creds, id)
	case "previous":
		view, err = c.h.service.Retreat(ctx, c.creds, id)
	case "submit":
		view, err = c.h.service.Finalize(ctx, c.creds, id)
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.emit("session", view)
	if inbound.Type == "submit" && view.Score != nil {
		c.emit("score", *view.Score)
	}
}

// load starts a fresh session on first use and regenerates it afterwards.
func (c *wsConn) load(ctx context.Context) {
	c.mu.Lock()
	token := c.guard.Begin(loadKey)
	id := c.id
	c.mu.Unlock()

	c.emit("request", app.Pending[app.SessionView]())
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var (
			view app.SessionView
			err  error
		)
		if id == "" {
			view, err = c.h.service.Start(ctx, c.creds, c.filename, c.count)
		} else {
			view, err = c.h.service.Regenerate(ctx, c.creds, id)
		}

		c.mu.Lock()
		current := c.guard.IsCurrent(loadKey, token)
		if current && err == nil {
			c.id = view.ID
		}
		c.mu.Unlock()

		if !current || errors.Is(err, domain.ErrStaleRequest) {
			if err == nil && id == "" {
				_ = c.h.service.Discard(context.Background(), c.creds, view.ID)
			}
			return
		}
		if err != nil {
			c.emit("request", app.Failed[app.SessionView](err))
			c.fail(err)
			return
		}
		c.emit("request", app.Succeeded(view))
		c.emit("session", view)
	}()
}

func (c *wsConn) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *wsConn) fail(err error) {
	if !errors.Is(err, context.Canceled) {
		c.h.log.Debug("quiz command failed", zap.String("subject", c.creds.Subject), zap.Error(err))
	}
	c.emit("error", errorPayload{Message: app.ErrorMessage(err), Retryable: domain.IsRetryable(err)})
}

func (c *wsConn) emit(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.closing:
	}
}
