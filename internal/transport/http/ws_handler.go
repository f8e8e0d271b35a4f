package http

import (
	"context"
	"encoding/json"
	"net/http"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler runs the live exam channel for one candidate per connection.
type WSHandler struct {
	service  *app.ExamService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ExamService, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     log,
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

type startPayload struct {
	PaperType string `json:"paperType"`
	SlotID    string `json:"slotId"`
}

type submitPayload struct {
	AttemptID string                    `json:"attemptId"`
	Answers   []domain.AnswerSubmission `json:"answers"`
}

type startedPayload struct {
	Attempt domain.ExamAttempt `json:"attempt"`
	Paper   domain.ExamPaper   `json:"paper"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and serves start/submit messages. The current
// eligibility is pushed on connect and after every submission.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	candidateID := r.URL.Query().Get("candidateId")
	if candidateID == "" {
		http.Error(w, "missing candidateId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := newWSSession(h.service, candidateID, h.log.With(zap.String("candidate_id", candidateID)))
	go sess.writeLoop(conn)

	if sess.pushEligibility(r.Context()) {
		sess.serve(r.Context(), conn)
	}

	close(sess.send)
	<-sess.writerDone
}

type jsonConn interface {
	WriteJSON(v any) error
	Close() error
}

// wsSession holds per-connection state. Only the read loop sends on send.
type wsSession struct {
	service     *app.ExamService
	candidateID string
	log         *zap.Logger
	send        chan outboundMessage[any]
	writerDone  chan struct{}
}

func newWSSession(service *app.ExamService, candidateID string, log *zap.Logger) *wsSession {
	return &wsSession{
		service:     service,
		candidateID: candidateID,
		log:         log,
		send:        make(chan outboundMessage[any], 16),
		writerDone:  make(chan struct{}),
	}
}

// writeLoop drains send until it is closed. A failed write closes the
// connection, which ends the read loop.
func (s *wsSession) writeLoop(conn jsonConn) {
	defer close(s.writerDone)
	for msg := range s.send {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warn("ws write failed", zap.Error(err))
			_ = conn.Close()
			return
		}
	}
}

// emit queues msg for the writer and reports false once the writer is gone.
func (s *wsSession) emit(msg outboundMessage[any]) bool {
	select {
	case s.send <- msg:
		return true
	case <-s.writerDone:
		return false
	}
}

func (s *wsSession) sendError(err error) {
	_, body := classify(err)
	s.emit(outboundMessage[any]{Type: "error", Payload: body})
}

func (s *wsSession) pushEligibility(ctx context.Context) bool {
	res, err := s.service.ResolveActivePaper(ctx, s.candidateID)
	if err != nil {
		s.sendError(err)
		return false
	}
	return s.emit(outboundMessage[any]{Type: "eligibility", Payload: res})
}

func (s *wsSession) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws read ended", zap.Error(err))
			}
			return
		}

		switch inbound.Type {
		case "start":
			s.start(ctx, inbound.Payload)
		case "submit":
			s.submit(ctx, inbound.Payload)
		default:
			s.sendError(domain.Validationf("unsupported message type %q", inbound.Type))
		}
	}
}

func (s *wsSession) start(ctx context.Context, raw json.RawMessage) {
	var payload startPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError(domain.Validationf("invalid start payload"))
		return
	}
	paperType, err := domain.ParsePaperType(payload.PaperType)
	if err != nil {
		s.sendError(err)
		return
	}
	attempt, err := s.service.StartExam(ctx, s.candidateID, paperType, payload.SlotID)
	if err != nil {
		s.sendError(err)
		return
	}
	paper, err := s.service.GetExamPaper(ctx, attempt.ID)
	if err != nil {
		s.sendError(err)
		return
	}
	s.emit(outboundMessage[any]{Type: "started", Payload: startedPayload{Attempt: attempt, Paper: paper}})
}

func (s *wsSession) submit(ctx context.Context, raw json.RawMessage) {
	var payload submitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError(domain.Validationf("invalid submit payload"))
		return
	}
	result, err := s.service.SubmitExam(ctx, payload.AttemptID, payload.Answers)
	if err != nil {
		s.sendError(err)
		return
	}
	if s.emit(outboundMessage[any]{Type: "result", Payload: result}) {
		s.pushEligibility(ctx)
	}
}
