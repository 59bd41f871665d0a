package handlers

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"nexor/chatbot"
	"nexor/config"
	"nexor/models"
)

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChatSend posts one message to the visitor's conversation and waits
// for the bot's reply.
func HandleChatSend(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleChatSend")
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	if utf8.RuneCountInString(req.Message) > config.MaxChatMessage {
		respondError(w, http.StatusBadRequest, "Message is too long.", app)
		return
	}

	conv := app.Chat().Get(visitorID(r))
	reply, err := conv.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, chatbot.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "Message cannot be empty.", app)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("Client left before the reply", "error", err)
		return
	case err != nil:
		logger.Error("Chat send failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Chat error", app)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reply":    reply,
		"messages": conv.Messages(),
	}, app)
}

// HandleChatHistory returns the visitor's conversation so far.
func HandleChatHistory(w http.ResponseWriter, r *http.Request, app App) {
	messages := []models.ChatMessage{}
	if conv, ok := app.Chat().Lookup(visitorID(r)); ok {
		messages = conv.Messages()
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages}, app)
}

// HandleChatQuick lists the one-click prompts shown under the chat box.
func HandleChatQuick(w http.ResponseWriter, r *http.Request, app App) {
	respondJSON(w, http.StatusOK, map[string]any{"quick_actions": chatbot.QuickActions}, app)
}
