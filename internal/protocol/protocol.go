// Package protocol - формат сообщений сокета комнаты: имена команд и событий,
// конверты и payload. Общий для сервера и клиента.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/feed-service/internal/domain"
)

// Команды клиент → сервер
const (
	CmdJoinRoom      = "join_room"
	CmdLeaveRoom     = "leave_room"
	CmdSendMessage   = "send_message"
	CmdUpdateMessage = "update_message"
	CmdDeleteMessage = "delete_message"
	CmdMarkSeen      = "mark_seen"
	CmdCreatePoll    = "create_poll"
	CmdVotePoll      = "vote_poll"
)

// События сервер → клиент
const (
	TypeChatHistory    = "chat_history"    // []domain.Message
	TypePollHistory    = "poll_history"    // []domain.Poll
	TypeReceiveMessage = "receive_message" // domain.Message
	TypeMessageUpdated = "message_updated"
	TypeMessageDeleted = "message_deleted"
	TypePollCreated    = "poll_created" // domain.Poll
	TypePollUpdated    = "poll_updated" // domain.Poll
	TypeError          = "error"
)

// Message - исходящий конверт.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope - входящий конверт; payload разбирается по Type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RoomPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type SendMessagePayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type UpdateMessagePayload struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
	Room      string `json:"room"`
	Username  string `json:"username"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
	Room      string `json:"room"`
	Username  string `json:"username"`
}

type CreatePollPayload struct {
	Room     string   `json:"room"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type VotePollPayload struct {
	PollID   string     `json:"pollId"`
	Option   VoteOption `json:"option"`
	Room     string     `json:"room,omitempty"`
	Username string     `json:"username"`
}

// VoteOption принимает и "Pizza", и {"option": "Pizza"}.
type VoteOption string

func (o *VoteOption) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*o = VoteOption(label)
		return nil
	}
	var obj struct {
		Option string `json:"option"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("option must be a string or {\"option\": ...}: %w", err)
	}
	*o = VoteOption(obj.Option)
	return nil
}

type MessageUpdatedPayload struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
	Timestamp string `json:"timestamp"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

func ChatHistory(msgs []domain.Message) Message {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return Message{Type: TypeChatHistory, Payload: msgs}
}

func PollHistory(polls []domain.Poll) Message {
	if polls == nil {
		polls = []domain.Poll{}
	}
	return Message{Type: TypePollHistory, Payload: polls}
}

func ReceiveMessage(m domain.Message) Message {
	return Message{Type: TypeReceiveMessage, Payload: m}
}
