package sipua

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
)

type sessionState int

const (
	stateEarly sessionState = iota
	stateAnswering
	stateConfirmed
	stateDone
)

const byeTimeout = 5 * time.Second

// session INVITE диалог, исходящий или входящий
type session struct {
	agent     *Agent
	id        string
	direction transport.Direction
	remote    transport.Identity

	mu         sync.Mutex
	state      sessionState
	handlers   []transport.SessionHandler
	client     *sipgo.DialogClientSession
	server     *sipgo.DialogServerSession
	cancelDial context.CancelFunc
}

func newSession(a *Agent, id string, dir transport.Direction, remote transport.Identity) *session {
	return &session{agent: a, id: id, direction: dir, remote: remote}
}

func (s *session) ID() string                         { return s.id }
func (s *session) Direction() transport.Direction     { return s.direction }
func (s *session) RemoteIdentity() transport.Identity { return s.remote }

func (s *session) OnEvent(h transport.SessionHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

func (s *session) emit(ev transport.SessionEvent) {
	s.mu.Lock()
	hs := make([]transport.SessionHandler, len(s.handlers))
	copy(hs, s.handlers)
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// finish переводит сессию в конечное состояние один раз
func (s *session) finish(typ transport.SessionEventType, cause string) {
	s.mu.Lock()
	if s.state == stateDone {
		s.mu.Unlock()
		return
	}
	s.state = stateDone
	client, server := s.client, s.server
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if server != nil {
		_ = server.Close()
	}
	s.agent.untrack(s.id)
	s.agent.log.Info(context.Background(), "session finished",
		logger.String("call_id", s.id),
		logger.String("event", typ.String()),
		logger.String("cause", cause))
	s.emit(transport.SessionEvent{Type: typ, Cause: cause})
}

func (s *session) confirm() {
	s.mu.Lock()
	if s.state == stateDone || s.state == stateConfirmed {
		s.mu.Unlock()
		return
	}
	s.state = stateConfirmed
	s.mu.Unlock()
	s.emit(transport.SessionEvent{Type: transport.SessionConfirmed})
}

// dial ждет ответа на INVITE и подтверждает диалог ACK
func (s *session) dial(ctx context.Context, req *sip.Request) {
	a := s.agent
	dcs, err := a.dialogCli.WriteInvite(ctx, req)
	if err != nil {
		s.finish(transport.SessionFailed, failureCause(ctx, "", err))
		return
	}
	s.mu.Lock()
	s.client = dcs
	done := s.state == stateDone
	s.mu.Unlock()
	if done {
		_ = dcs.Close()
		return
	}

	var lastFinal string
	err = dcs.WaitAnswer(ctx, sipgo.AnswerOptions{
		Username: a.authUser(),
		Password: a.cfg.CredentialSecret,
		OnResponse: func(res *sip.Response) error {
			switch {
			case res.StatusCode > 100 && res.StatusCode < 200:
				s.emit(transport.SessionEvent{Type: transport.SessionProgress})
			case res.StatusCode >= 300:
				lastFinal = responseCause(res)
			}
			return nil
		},
	})
	if err != nil {
		s.finish(transport.SessionFailed, failureCause(ctx, lastFinal, err))
		return
	}

	if err := dcs.Ack(ctx); err != nil {
		a.log.Warn(ctx, "failed to send ack", logger.String("call_id", s.id), logger.Err(err))
	}
	a.log.Info(ctx, "call answered",
		logger.String("call_id", s.id),
		logger.String("media", mediaSummary(dcs.InviteResponse.Body())))
	s.confirm()
}

func failureCause(ctx context.Context, final string, err error) string {
	switch {
	case ctx.Err() != nil:
		return "Canceled"
	case final != "":
		return final
	default:
		return err.Error()
	}
}

// Answer отвечает 200 OK с SDP. Подтверждение приходит с ACK.
func (s *session) Answer() error {
	s.mu.Lock()
	if s.direction != transport.DirectionIncoming || s.state != stateEarly || s.server == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = stateAnswering
	server := s.server
	s.mu.Unlock()

	answer, err := BuildOffer(OfferConfig{Host: s.agent.opts.MediaHost, Audio: true})
	if err != nil {
		return err
	}
	if err := server.RespondSDP(answer); err != nil {
		s.mu.Lock()
		s.state = stateEarly
		s.mu.Unlock()
		return err
	}
	return nil
}

// Terminate завершает сессию: CANCEL до ответа, отказ входящего,
// BYE установленного диалога
func (s *session) Terminate(opts transport.TerminateOptions) error {
	s.mu.Lock()
	state := s.state
	client, server, cancelDial := s.client, s.server, s.cancelDial
	s.mu.Unlock()

	switch {
	case state == stateDone:
		return nil

	case s.direction == transport.DirectionOutgoing && state == stateEarly:
		if cancelDial != nil {
			cancelDial()
		}
		return nil

	case s.direction == transport.DirectionIncoming && state == stateEarly:
		code, reason := opts.StatusCode, opts.Reason
		if code == 0 {
			code, reason = int(sip.StatusBusyHere), "Busy Here"
		}
		err := server.Respond(code, reason, nil)
		s.finish(transport.SessionFailed, reason)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	var err error
	if client != nil {
		err = client.Bye(ctx)
	} else if server != nil {
		err = server.Bye(ctx)
	}
	s.finish(transport.SessionEnded, "Terminated")
	return err
}

func (s *session) acked() {
	s.mu.Lock()
	answering := s.state == stateAnswering
	s.mu.Unlock()
	if answering {
		s.confirm()
	}
}

// inviteDone серверная транзакция INVITE завершена. Без ответа 2xx это
// CANCEL или таймаут.
func (s *session) inviteDone() {
	s.mu.Lock()
	early := s.state == stateEarly
	s.mu.Unlock()
	if early {
		s.finish(transport.SessionFailed, "Canceled")
	}
}

func (s *session) remoteBye() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == stateConfirmed || state == stateAnswering {
		s.finish(transport.SessionEnded, "BYE")
		return
	}
	s.finish(transport.SessionFailed, "BYE")
}
