package ws

import (
	"context"
	"encoding/json"
	"errors"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

func actionPing(s *Session, frame inboundFrame) error {
	s.sendResult("pong", nil, frame.RequestID)
	return nil
}

func actionSendMessage(s *Session, frame inboundFrame) error {
	ctx := context.Background()

	var fields map[string]json.RawMessage
	if json.Unmarshal(frame.Data, &fields) != nil || fields == nil {
		s.sendError("Invalid message", frame.RequestID, 400)
		return nil
	}

	var chatID int
	if raw, ok := fields["chat_id"]; !ok || json.Unmarshal(raw, &chatID) != nil {
		s.sendError("Invalid chat_id", frame.RequestID, 400)
		return nil
	}

	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		s.sendError("Invalid chat_id", frame.RequestID, 400)
		return nil
	}
	if err != nil {
		return err
	}
	if !chat.HasMember(s.userID) {
		s.sendError("User is not a member of the chat", frame.RequestID, 400)
		return nil
	}

	var content string
	if raw, ok := fields["content"]; !ok || json.Unmarshal(raw, &content) != nil {
		s.sendError("Invalid message", frame.RequestID, 400)
		return nil
	}
	if content == "" {
		s.sendError("Message cannot be empty", frame.RequestID, 400)
		return nil
	}

	var replyTo *int
	if raw, ok := fields["reply_to"]; ok {
		var id int
		if json.Unmarshal(raw, &id) != nil {
			s.sendError("Invalid reply_to", frame.RequestID, 400)
			return nil
		}
		target, err := s.messageRepo.GetMessage(ctx, id)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			s.sendError("Invalid reply_to", frame.RequestID, 400)
			return nil
		}
		if err != nil {
			return err
		}
		if target.ChatID != chatID {
			s.sendError("Invalid reply_to", frame.RequestID, 400)
			return nil
		}
		replyTo = &id
	}

	senderID := s.userID
	msg, err := s.messageRepo.CreateMessage(ctx, chatID, &senderID, models.UserKindNormal, content, replyTo)
	if err != nil {
		return err
	}

	sender, err := s.userRepo.GetUser(ctx, s.userID)
	if err != nil {
		return err
	}
	s.dispatcher.NewMessage(chat, msg.View(sender.Ref(), false))

	// Sending into a chat counts as having read it.
	if err := s.messageRepo.MarkChatRead(ctx, chatID, s.userID); err != nil {
		return err
	}
	s.dispatcher.MessagesRead(chatID, s.userID)
	return nil
}

func actionRecallMessage(s *Session, frame inboundFrame) error {
	ctx := context.Background()

	var fields map[string]json.RawMessage
	if json.Unmarshal(frame.Data, &fields) != nil || fields == nil {
		s.sendError("Invalid message to recall", frame.RequestID, 400)
		return nil
	}

	var messageID int
	if raw, ok := fields["message_id"]; !ok || json.Unmarshal(raw, &messageID) != nil {
		s.sendError("Invalid message to recall", frame.RequestID, 400)
		return nil
	}

	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		s.sendError("Invalid message to recall", frame.RequestID, 400)
		return nil
	}
	if err != nil {
		return err
	}

	deleteForSelf := false
	if raw, ok := fields["delete"]; ok {
		if json.Unmarshal(raw, &deleteForSelf) != nil {
			s.sendError("Invalid delete flag", frame.RequestID, 400)
			return nil
		}
	}

	if deleteForSelf {
		if err := s.messageRepo.DeleteForViewer(ctx, messageID, s.userID); err != nil {
			return err
		}
		s.dispatcher.MessageDeleted(s.userID, msg.ChatID, messageID)
		return nil
	}

	// A recalled message has its sender rebound to the deleted sentinel, so
	// this check also rejects a second recall.
	if !msg.SenderID.Valid || int(msg.SenderID.Int64) != s.userID {
		s.sendError("You are not the sender of the message", frame.RequestID, 400)
		return nil
	}

	recalled, err := s.messageRepo.RecallMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageRecalled) {
		s.sendError("You are not the sender of the message", frame.RequestID, 400)
		return nil
	}
	if err != nil {
		return err
	}

	chat, err := s.chatRepo.GetChat(ctx, recalled.ChatID)
	if err != nil {
		return err
	}
	s.dispatcher.MessageRecalled(chat, recalled.View(models.DeletedUser(), true))
	return nil
}

func actionMessagesRead(s *Session, frame inboundFrame) error {
	ctx := context.Background()

	var fields map[string]json.RawMessage
	if json.Unmarshal(frame.Data, &fields) != nil || fields == nil {
		s.sendError("Invalid chat_id", frame.RequestID, 400)
		return nil
	}

	var chatID int
	if raw, ok := fields["chat_id"]; !ok || json.Unmarshal(raw, &chatID) != nil {
		s.sendError("Invalid chat_id", frame.RequestID, 400)
		return nil
	}

	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		s.sendError("Invalid chat_id", frame.RequestID, 400)
		return nil
	}
	if err != nil {
		return err
	}
	if !chat.HasMember(s.userID) {
		s.sendError("User is not a member of the chat", frame.RequestID, 400)
		return nil
	}

	if err := s.messageRepo.MarkChatRead(ctx, chatID, s.userID); err != nil {
		return err
	}
	s.dispatcher.MessagesRead(chatID, s.userID)
	return nil
}
