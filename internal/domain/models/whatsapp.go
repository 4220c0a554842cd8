package models

// WebhookPayload is the subset of a WhatsApp Cloud API webhook callback the
// operator commands read. Delivery statuses, contacts and media are ignored.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one business account entry of a callback.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange wraps the changed field; inbound chats arrive with Field "messages".
type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

type WebhookValue struct {
	Messages []InboundMessage `json:"messages"`
}

// InboundMessage is a message an operator sent to the farm number. Only text
// and interactive replies carry a command.
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

// InteractiveContent holds a tapped button or list row. Their IDs are the
// command text, e.g. "/done <reminder id>".
type InteractiveContent struct {
	Type        string       `json:"type"`
	ButtonReply *ReplyChoice `json:"button_reply,omitempty"`
	ListReply   *ReplyChoice `json:"list_reply,omitempty"`
}

// ReplyChoice is the selected button or list item.
type ReplyChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
