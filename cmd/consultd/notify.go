package main

import (
	"github.com/consultd/consultd/internal/eventhub"
	"github.com/consultd/consultd/internal/model"
)

// hubNotifier adapts eventhub.Hub.Broadcast to conversation.Notifier's
// four-method interface.
type hubNotifier struct {
	hub *eventhub.Hub
}

func (n *hubNotifier) ConversationCreated(conv *model.Conversation) {
	n.hub.Broadcast(eventhub.EventConversationCreated, conv)
}

func (n *hubNotifier) ConversationMessage(conversationID string, msg *model.Message) {
	n.hub.Broadcast(eventhub.EventConversationMessage, map[string]interface{}{
		"conversationId": conversationID,
		"message":        msg,
	})
}

func (n *hubNotifier) ConversationEnded(conversationID string, reason model.EndReason) {
	n.hub.Broadcast(eventhub.EventConversationEnded, map[string]interface{}{
		"conversationId": conversationID,
		"reason":         reason,
	})
}

func (n *hubNotifier) ConversationDeleted(conversationID string) {
	n.hub.Broadcast(eventhub.EventConversationDeleted, map[string]string{
		"conversationId": conversationID,
	})
}
