package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"cypher-server/internal/gateway"
	"cypher-server/internal/hub"
	"cypher-server/internal/model"
	"cypher-server/internal/persona"
	"cypher-server/internal/quota"
	"cypher-server/internal/store"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPersona  = errors.New("invalid persona")
	// ErrSessionBusy rejects a second send while one is in flight for the
	// same session. Other sessions are unaffected.
	ErrSessionBusy = errors.New("session has a request in flight")
)

// Outcome is the single result of a send intent: exactly one of a reply
// turn (assistant message or classified error message) or a quota-exceeded
// signal. The quota signal is a blocking condition for the presentation
// layer, not a chat turn.
type Outcome struct {
	Session       model.Session
	Reply         *model.ChatMessage
	QuotaExceeded bool
	QuotaLeft     int
}

// Service mediates every outbound AI request. It owns session resolution,
// the unconditional user-message append, the quota gate, the single
// gateway attempt and the terminal-turn guarantee: a user turn that passes
// the quota gate is always answered, on the happy path or the failure path.
type Service struct {
	store *store.Store
	gen   gateway.Generator
	quota *quota.Tracker
	hub   *hub.Hub
	now   func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(st *store.Store, gen gateway.Generator, tracker *quota.Tracker, h *hub.Hub) *Service {
	return NewServiceWithNow(st, gen, tracker, h, time.Now)
}

func NewServiceWithNow(st *store.Store, gen gateway.Generator, tracker *quota.Tracker, h *hub.Hub, now func() time.Time) *Service {
	return &Service{
		store:    st,
		gen:      gen,
		quota:    tracker,
		hub:      h,
		now:      now,
		inFlight: make(map[string]struct{}),
	}
}

// Send resolves the target session, appends the user message, applies the
// quota gate and answers the turn. Appends route by session id: a reply
// that resolves after the caller moved on is still written to its session.
func (s *Service) Send(ctx context.Context, accountID string, p model.Persona, activeSessionID, text string, attachments []model.Attachment) (Outcome, error) {
	if !p.Valid() {
		return Outcome{}, ErrInvalidPersona
	}
	acc, ok := s.store.GetAccount(accountID)
	if !ok {
		return Outcome{}, ErrAccountNotFound
	}

	sess, ok := s.store.GetActiveSession(accountID, p, activeSessionID)
	if !ok {
		created, err := s.store.CreateSession(accountID, p, text, s.now().UnixMilli())
		if err != nil {
			return Outcome{}, err
		}
		sess = created
		s.publish(accountID, hub.Event{Type: hub.EventSessionCreated, SessionID: sess.ID, Persona: string(p)})
	}

	if !s.acquire(sess.ID) {
		return Outcome{}, ErrSessionBusy
	}
	defer s.release(sess.ID)

	userMsg := model.ChatMessage{
		Role:        model.RoleUser,
		Content:     text,
		Timestamp:   s.now().UnixMilli(),
		Attachments: attachments,
	}
	sess, err := s.store.AppendMessage(sess.ID, userMsg, userMsg.Timestamp)
	if err != nil {
		return Outcome{}, err
	}
	s.publish(accountID, hub.Event{Type: hub.EventMessageAppended, SessionID: sess.ID})

	cfg := persona.Lookup(p)
	if cfg.QuotaRestricted {
		if !s.quota.CheckAndConsume(&acc, p) {
			return Outcome{
				Session:       sess,
				QuotaExceeded: true,
				QuotaLeft:     0,
			}, nil
		}
		acc.UpdatedAt = s.now().UnixMilli()
		if err := s.store.UpsertAccount(acc); err != nil {
			return Outcome{}, err
		}
		s.publish(accountID, hub.Event{Type: hub.EventAccountUpdated})
	}

	reply := s.answer(ctx, p, cfg, sess)
	sess, err = s.store.AppendMessage(sess.ID, reply, reply.Timestamp)
	if err != nil {
		return Outcome{}, err
	}
	s.publish(accountID, hub.Event{Type: hub.EventMessageAppended, SessionID: sess.ID})

	out := Outcome{Session: sess, Reply: &reply}
	if cfg.QuotaRestricted {
		out.QuotaLeft = s.quota.Remaining(acc)
	}
	return out, nil
}

// answer performs the single gateway attempt and converts any failure into
// a persona-voiced assistant turn. No error escapes to the caller.
func (s *Service) answer(ctx context.Context, p model.Persona, cfg persona.Config, sess model.Session) model.ChatMessage {
	req := gateway.Request{
		Model:          cfg.Model,
		SystemPrompt:   cfg.SystemPrompt,
		Temperature:    cfg.Temperature,
		ThinkingBudget: cfg.ThinkingBudget,
		History:        sess.Messages,
	}

	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		kind := gateway.Classify(err)
		text = persona.ErrorMessage(p, kind, err.Error())
	}

	return model.ChatMessage{
		Role:      model.RoleAssistant,
		Content:   text,
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sessionID]; busy {
		return false
	}
	s.inFlight[sessionID] = struct{}{}
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}

func (s *Service) publish(accountID string, event hub.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(accountID, event)
}
