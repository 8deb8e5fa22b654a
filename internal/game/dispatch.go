package game

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"rugroulette/internal/logging"
)

// HandlerFunc handles one decoded inbound message for a session.
type HandlerFunc func(id SessionID, data json.RawMessage) error

// Dispatcher routes inbound frames to handlers by message type. It knows
// nothing about the transport, so the engine can be driven by feeding it raw
// frames directly.
type Dispatcher struct {
	engine   *Engine
	out      Broadcaster
	handlers map[MessageType]HandlerFunc
	log      zerolog.Logger
}

func NewDispatcher(engine *Engine, out Broadcaster, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		out:      out,
		handlers: make(map[MessageType]HandlerFunc),
		log:      logging.WithComponent(logger, "dispatch"),
	}
	d.Register(MsgConnectWallet, d.connectWallet)
	d.Register(MsgJoinPool, d.joinPool)
	d.Register(MsgQuickSpin, d.quickSpin)
	d.Register(MsgPing, d.ping)
	return d
}

func (d *Dispatcher) Register(t MessageType, h HandlerFunc) {
	d.handlers[t] = h
}

// Handle decodes raw and runs the matching handler. Request errors have
// already been reported to the client; only engine shutdown is returned.
func (d *Dispatcher) Handle(id SessionID, raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.reply(id, badRequest("Malformed message"))
		return nil
	}

	handler, ok := d.handlers[msg.Type]
	if !ok {
		d.reply(id, badRequest("Unknown message type %q", msg.Type))
		return nil
	}

	err := handler(id, msg.Data)
	if errors.Is(err, ErrEngineStopped) {
		return err
	}
	return nil
}

// Connected registers a new connection with the engine.
func (d *Dispatcher) Connected(id SessionID) error {
	return d.engine.Attach(id)
}

// Disconnected releases everything the connection held.
func (d *Dispatcher) Disconnected(id SessionID) error {
	return d.engine.Disconnect(id)
}

func (d *Dispatcher) reply(id SessionID, err *Error) {
	d.log.Debug().Str("session_id", string(id)).Str("error", err.Message).Msg("Bad frame")
	d.out.Send(id, Event{Type: MsgError, Data: ErrorMessage{Message: err.Message}})
}

func decode(data json.RawMessage, v interface{}) *Error {
	if len(data) == 0 {
		return badRequest("Missing message data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("Invalid message data")
	}
	return nil
}

func (d *Dispatcher) connectWallet(id SessionID, data json.RawMessage) error {
	var req ConnectWalletRequest
	if err := decode(data, &req); err != nil {
		d.reply(id, err)
		return err
	}
	_, err := d.engine.ConnectWallet(id, req)
	return err
}

func (d *Dispatcher) joinPool(id SessionID, data json.RawMessage) error {
	var req JoinPoolRequest
	if err := decode(data, &req); err != nil {
		d.reply(id, err)
		return err
	}
	_, err := d.engine.Join(id, req.StakeAmount)
	return err
}

func (d *Dispatcher) quickSpin(id SessionID, data json.RawMessage) error {
	var req QuickSpinRequest
	if err := decode(data, &req); err != nil {
		d.reply(id, err)
		return err
	}
	_, err := d.engine.Spin(id, req.BetAmount, req.Multiplier)
	return err
}

func (d *Dispatcher) ping(id SessionID, _ json.RawMessage) error {
	d.out.Send(id, Event{Type: MsgPong})
	return nil
}
