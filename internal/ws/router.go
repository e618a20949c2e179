package ws

import (
	"fmt"
	"log"

	"chat-backend/internal/observability"
)

// actionHandlers maps inbound actions to their handlers. Handlers send their
// own replies for domain-level rejections and return an error only for
// failures the client cannot fix.
var actionHandlers = map[string]func(*Session, inboundFrame) error{
	"ping":           actionPing,
	"send_message":   actionSendMessage,
	"recall_message": actionRecallMessage,
	"messages_read":  actionMessagesRead,
}

// handleFrame runs one inbound frame to completion. Every failure mode
// answers with an error frame and leaves the connection open.
func (s *Session) handleFrame(raw []byte) {
	frame, ferr := parseFrame(raw)
	if ferr != nil {
		s.sendError(ferr.message, ferr.requestID, ferr.code)
		return
	}

	handler, ok := actionHandlers[frame.Action]
	if !ok {
		s.sendError("Unknown action: "+frame.Action, frame.RequestID, 400)
		return
	}
	observability.IncWSEvent("action_" + frame.Action)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: action %s panicked: %v", frame.Action, r)
			s.sendError(fmt.Sprintf("Internal Server Error: %v", r), frame.RequestID, 500)
		}
	}()

	if err := handler(s, frame); err != nil {
		log.Printf("ws: action %s: %v", frame.Action, err)
		s.sendError(fmt.Sprintf("Internal Server Error: %v", err), frame.RequestID, 500)
	}
}
