package ws_test

import (
	"errors"
	"testing"

	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/mocks"
	"github.com/cwrk-planet/feed-service/internal/transport/ws"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDispatcher_PublishSkipsFailedMember(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	msg := protocol.Message{Type: protocol.TypeReceiveMessage, Payload: "hi"}
	reg := ws.NewRegistry()

	for i, fail := range []bool{false, true, false} {
		c := mocks.NewMockConn(ctrl)
		id := []string{"c1", "c2", "c3"}[i]
		c.EXPECT().ID().Return(id).AnyTimes()
		if fail {
			c.EXPECT().Send(msg).Return(errors.New("broken pipe")).Times(1)
		} else {
			c.EXPECT().Send(msg).Return(nil).Times(1)
		}
		reg.Join(c, "r1", "user")
	}
	other := mocks.NewMockConn(ctrl)
	other.EXPECT().ID().Return("c4").AnyTimes()
	reg.Join(other, "r2", "user")

	d := ws.NewDispatcher(reg)
	req.Equal(2, d.Publish("r1", msg))
}

func TestDispatcher_SendTo(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mocks.NewMockConn(ctrl)
	c.EXPECT().ID().Return("c1").AnyTimes()
	c.EXPECT().Send(gomock.Any()).Return(ws.ErrSendBufferFull)

	d := ws.NewDispatcher(ws.NewRegistry())
	require.ErrorIs(t, d.SendTo(c, protocol.Message{Type: protocol.TypeError}), ws.ErrSendBufferFull)
}
