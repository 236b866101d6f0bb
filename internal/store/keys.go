package store

// Key layout for the conversation cache. Each conversation owns a disjoint
// set of keys, so writers for different conversations never contend.

// MessagesKey is the persisted message list for a conversation.
func MessagesKey(conversationID string) string {
	return "messages:" + conversationID
}

// AttachmentsKey is the attachment index for a conversation.
func AttachmentsKey(conversationID string) string {
	return "attachments:" + conversationID
}

// LastSyncKey is the last-sync watermark for a conversation.
func LastSyncKey(conversationID string) string {
	return "last_sync:" + conversationID
}
