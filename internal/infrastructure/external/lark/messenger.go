package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/record-workflow/internal/application/port"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Receive id types accepted by the IM message API
const (
	ReceiveIDEmail   = "email"
	ReceiveIDChat    = "chat_id"
	ReceiveIDOpen    = "open_id"
	ReceiveIDUnion   = "union_id"
	ReceiveIDUser    = "user_id"
	msgTypeText      = "text"
	msgTypeCard      = "interactive"
	chatIDPrefix     = "oc_"
	openIDPrefix     = "ou_"
	unionIDPrefix    = "on_"
	maxTextBodyBytes = 150 * 1024
)

// messageCreator is the part of the IM API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// outgoing is one IM message before it is encoded into an SDK request
type outgoing struct {
	ReceiveIDType string
	ReceiveID     string
	MsgType       string
	Content       string
}

type postFunc func(ctx context.Context, msg outgoing) (*larkim.CreateMessageResp, error)

// viaAPI posts messages through the SDK message resource
func viaAPI(api messageCreator) postFunc {
	return func(ctx context.Context, msg outgoing) (*larkim.CreateMessageResp, error) {
		req := larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(msg.ReceiveIDType).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				ReceiveId(msg.ReceiveID).
				MsgType(msg.MsgType).
				Content(msg.Content).
				Build()).
			Build()
		return api.Create(ctx, req)
	}
}

// Messenger delivers notifications as Lark IM text messages.
// It implements port.NotificationTransport.
type Messenger struct {
	post   postFunc
	logger *zap.Logger
}

var _ port.NotificationTransport = (*Messenger)(nil)

// NewMessenger creates a new Lark message sender
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		post:   viaAPI(sdk.Client().Im.Message),
		logger: logger,
	}
}

// Send delivers message to contact. The receive id type is derived from the
// contact: an email address, a chat id (oc_), a union id (on_), an open id
// (ou_), or otherwise a tenant user id.
func (m *Messenger) Send(ctx context.Context, contact, message string) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return fmt.Errorf("contact cannot be empty")
	}
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(content) > maxTextBodyBytes {
		return fmt.Errorf("message body is %d bytes, limit is %d", len(content), maxTextBodyBytes)
	}

	_, err = m.create(ctx, ReceiveIDType(contact), contact, msgTypeText, string(content))
	return err
}

// SendCard delivers an interactive card to contact
func (m *Messenger) SendCard(ctx context.Context, contact string, card interface{}) error {
	if contact == "" {
		return fmt.Errorf("contact cannot be empty")
	}
	if card == nil {
		return fmt.Errorf("card cannot be nil")
	}

	cardJSON, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	_, err = m.create(ctx, ReceiveIDType(contact), contact, msgTypeCard, string(cardJSON))
	return err
}

func (m *Messenger) create(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	resp, err := m.post(ctx, outgoing{
		ReceiveIDType: receiveIDType,
		ReceiveID:     receiveID,
		MsgType:       msgType,
		Content:       content,
	})
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.String("receive_id_type", receiveIDType),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if resp == nil {
		return "", fmt.Errorf("failed to send message: empty response")
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiveID))

	return messageID, nil
}

// ReceiveIDType picks the IM receive id type for a contact
func ReceiveIDType(contact string) string {
	switch {
	case strings.Contains(contact, "@"):
		return ReceiveIDEmail
	case strings.HasPrefix(contact, chatIDPrefix):
		return ReceiveIDChat
	case strings.HasPrefix(contact, unionIDPrefix):
		return ReceiveIDUnion
	case strings.HasPrefix(contact, openIDPrefix):
		return ReceiveIDOpen
	default:
		return ReceiveIDUser
	}
}
