package coordinator

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-server/internal/session"
	"github.com/park285/chess-server/internal/wire"
)

// entry is one row of the static dispatch table: a required session
// state precondition plus the handler itself. This replaces the ad-hoc
// dispatch in a long if/elif chain that cmd/chess-bot/main.go's
// handleCommand switch used to exhibit.
type entry struct {
	requiredState session.State
	handle        func(c *Coordinator, s *session.Session, payload []byte)
}

type Dispatcher struct {
	table map[wire.MessageID]entry
}

func buildDispatcher(c *Coordinator) *Dispatcher {
	d := &Dispatcher{table: make(map[wire.MessageID]entry)}

	d.table[wire.Register] = entry{session.Connected, handleRegister}
	d.table[wire.Login] = entry{session.Connected, handleLogin}

	d.table[wire.FindMatch] = entry{session.Authenticated, handleFindMatch}
	d.table[wire.CancelFindMatch] = entry{session.Authenticated, handleCancelFindMatch}
	d.table[wire.FindAIMatch] = entry{session.Authenticated, handleFindAIMatch}
	d.table[wire.Challenge] = entry{session.Authenticated, handleChallenge}
	d.table[wire.AcceptChallenge] = entry{session.Authenticated, handleAcceptChallenge}
	d.table[wire.DeclineChallenge] = entry{session.Authenticated, handleDeclineChallenge}

	d.table[wire.MakeMove] = entry{session.InGame, handleMakeMove}
	d.table[wire.Resign] = entry{session.InGame, handleResign}
	d.table[wire.OfferDraw] = entry{session.InGame, handleOfferDraw}
	d.table[wire.AcceptDraw] = entry{session.InGame, handleAcceptDraw}
	d.table[wire.DeclineDraw] = entry{session.InGame, handleDeclineDraw}

	return d
}

// Handle is the sole entry point from the codec into business logic. A
// state mismatch never invokes the handler; it returns a typed state
// error instead.
func (d *Dispatcher) Handle(c *Coordinator, s *session.Session, frame wire.Frame) {
	e, ok := d.table[frame.MessageID]
	if !ok {
		c.logger.Debug("unknown_message_id", zap.String("message_id", fmt.Sprintf("%#04x", uint16(frame.MessageID))))
		return
	}
	if s.State() != e.requiredState {
		c.sendError(s, wire.NewError(wire.KindState, fmt.Sprintf("invalid state for message %#04x", frame.MessageID)))
		return
	}
	e.handle(c, s, frame.Payload)
}

// sendError translates a classified failure into the wire-level
// InternalError reply and decides, from its Kind, whether the session
// survives. Request types with their own dedicated reply payload
// (RegisterResult, LoginResult, InvalidMove) report failures directly
// and never go through here; this path is for the errors that share
// the generic ErrorPayload shape.
func (c *Coordinator) sendError(s *session.Session, werr *wire.Error) {
	if werr.Disconnects() {
		c.logger.Warn("protocol_error", zap.String("session_id", s.ID), zap.String("reason", werr.Reason))
		c.post(func() { c.disconnect(s.ID, werr.Reason) })
		return
	}
	_, _ = s.SendMessage(wire.InternalError, wire.ErrorPayload{Reason: werr.Reason})
}

func decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}
