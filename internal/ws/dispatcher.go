package ws

import (
	"github.com/idia-astro/carta-scripting/internal/protocol"
)

// MessageHandler handles a parsed frontend message. msg is the concrete
// struct returned by protocol.ParseFrontendMessage.
type MessageHandler func(conn *Connection, msg any)

// MessageDispatcher routes incoming frontend messages to registered handlers
// by type. Pings are answered internally; malformed or unsupported messages
// get an error frame back.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
}

// NewMessageDispatcher creates a MessageDispatcher bound to the given server.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
	}
}

// Register associates a handler with a message type, replacing any previous
// handler.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseFrontendMessage(data)
	if err != nil {
		d.server.logger.Debug("dispatch parse error", "session_id", conn.ID, "type", msgType, "error", err)
		if msgType != "" && msg == nil && !isKnownFrontendType(msgType) {
			d.sendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
			return
		}
		d.sendError(conn, protocol.CodeParseError, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.server.logger.Debug("unsupported message type", "session_id", conn.ID, "type", msgType)
		d.sendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}

	handler(conn, msg)
}

func isKnownFrontendType(msgType string) bool {
	return msgType == protocol.TypeActionReply || msgType == protocol.TypePing
}

// SendError sends a structured error frame to the frontend.
func (d *MessageDispatcher) SendError(conn *Connection, code, message string) {
	d.sendError(conn, code, message)
}

func (d *MessageDispatcher) sendError(conn *Connection, code, message string) {
	data, err := protocol.NewMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		d.server.logger.Error("failed to build error message", "session_id", conn.ID, "error", err)
		return
	}

	if err := d.server.SendMessage(conn.ID, data); err != nil {
		d.server.logger.Warn("failed to send error message", "session_id", conn.ID, "error", err)
	}
}

// sendPong answers a frontend ping.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.Touch()

	data, err := protocol.NewMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		d.server.logger.Error("failed to build pong message", "session_id", conn.ID, "error", err)
		return
	}

	if err := d.server.SendMessage(conn.ID, data); err != nil {
		d.server.logger.Warn("failed to send pong message", "session_id", conn.ID, "error", err)
	}
}
