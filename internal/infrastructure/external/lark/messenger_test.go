package lark

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockCreator stands in for the SDK message resource
type mockCreator struct {
	calls int
	resp  *larkim.CreateMessageResp
	err   error
}

func (m *mockCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

// recorder captures the messages handed to the SDK
type recorder struct {
	sent []outgoing
	resp *larkim.CreateMessageResp
	err  error
}

func (r *recorder) post(ctx context.Context, msg outgoing) (*larkim.CreateMessageResp, error) {
	r.sent = append(r.sent, msg)
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

func newTestMessenger(r *recorder) *Messenger {
	return &Messenger{post: r.post, logger: zap.NewNop()}
}

func okResponse(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestMessenger_Send(t *testing.T) {
	rec := &recorder{resp: okResponse("om_1")}
	m := newTestMessenger(rec)

	msg := "Ticket \"T\" moved\nto assigned"
	require.NoError(t, m.Send(context.Background(), " ou_abc ", msg))

	require.Len(t, rec.sent, 1)
	sent := rec.sent[0]
	assert.Equal(t, ReceiveIDOpen, sent.ReceiveIDType)
	assert.Equal(t, "ou_abc", sent.ReceiveID)
	assert.Equal(t, "text", sent.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(sent.Content), &content))
	assert.Equal(t, msg, content["text"])

	require.NoError(t, m.Send(context.Background(), "ana@example.com", "hi"))
	assert.Equal(t, ReceiveIDEmail, rec.sent[1].ReceiveIDType)
}

func TestMessenger_ViaAPI(t *testing.T) {
	api := &mockCreator{resp: okResponse("om_9")}
	m := &Messenger{post: viaAPI(api), logger: zap.NewNop()}

	require.NoError(t, m.Send(context.Background(), "oc_room", "hi"))
	assert.Equal(t, 1, api.calls)

	api.err = errors.New("dial tcp: timeout")
	assert.Error(t, m.Send(context.Background(), "oc_room", "hi"))
}

func TestMessenger_SendFailures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		m := newTestMessenger(&recorder{err: errors.New("dial tcp: timeout")})
		assert.Error(t, m.Send(context.Background(), "ou_abc", "hi"))
	})

	t.Run("api error code", func(t *testing.T) {
		resp := &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230001, Msg: "invalid receive_id"}}
		m := newTestMessenger(&recorder{resp: resp})
		err := m.Send(context.Background(), "ou_abc", "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "230001")
	})

	t.Run("input checks", func(t *testing.T) {
		rec := &recorder{resp: okResponse("om_1")}
		m := newTestMessenger(rec)
		assert.Error(t, m.Send(context.Background(), " ", "hi"))
		assert.Error(t, m.Send(context.Background(), "ou_abc", ""))
		assert.Error(t, m.Send(context.Background(), "ou_abc", strings.Repeat("x", maxTextBodyBytes)))
		assert.Empty(t, rec.sent)
	})

	t.Run("empty response", func(t *testing.T) {
		assert.Error(t, newTestMessenger(&recorder{}).Send(context.Background(), "ou_abc", "hi"))
	})
}

func TestMessenger_SendCard(t *testing.T) {
	rec := &recorder{resp: okResponse("om_2")}
	m := newTestMessenger(rec)

	card := map[string]any{"header": map[string]any{"title": map[string]string{"tag": "plain_text", "content": "Resolved"}}}
	require.NoError(t, m.SendCard(context.Background(), "oc_room", card))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "interactive", rec.sent[0].MsgType)
	assert.Equal(t, ReceiveIDChat, rec.sent[0].ReceiveIDType)
	assert.JSONEq(t, `{"header":{"title":{"tag":"plain_text","content":"Resolved"}}}`, rec.sent[0].Content)

	assert.Error(t, m.SendCard(context.Background(), "oc_room", nil))
}

func TestReceiveIDType(t *testing.T) {
	tests := []struct {
		contact string
		want    string
	}{
		{"ana@example.com", ReceiveIDEmail},
		{"oc_a1b2", ReceiveIDChat},
		{"ou_a1b2", ReceiveIDOpen},
		{"on_a1b2", ReceiveIDUnion},
		{"5f3a9c", ReceiveIDUser},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReceiveIDType(tt.contact), tt.contact)
	}
}

func TestNewSDKClient(t *testing.T) {
	sdk := NewSDKClient(Config{AppID: "cli_a", AppSecret: "s", RequestTimeout: time.Second}, zap.NewNop())
	assert.Equal(t, "cli_a", sdk.AppID())
	require.NotNil(t, sdk.Client())
	assert.NotNil(t, NewMessenger(sdk, zap.NewNop()))
}

func TestZapSDKLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zapSDKLogger{zap.New(core).Sugar()}

	l.Warn(context.Background(), "token refresh failed: ", 401)
	l.Debug(context.Background(), "request", " sent")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "token refresh failed: 401", entries[0].Message)
	assert.Equal(t, "request sent", entries[1].Message)
}
