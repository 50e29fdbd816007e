package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/pkg/constant"
	"github.com/mbeoliero/coachim/pkg/errcode"
)

func TestSendMessageRequest_Validate(t *testing.T) {
	const sender, recv = "in__2", "cl__1"
	convId := entity.GenSingleConversationId(sender, recv)

	tests := []struct {
		name    string
		req     SendMessageRequest
		wantErr *errcode.Error
	}{
		{
			name: "ok",
			req:  SendMessageRequest{ClientMsgId: "cm-1", RecvId: recv, Content: "log your meals"},
		},
		{
			name: "ok with matching conversation",
			req:  SendMessageRequest{ClientMsgId: "cm-1", ConversationId: convId, RecvId: recv, Content: "x"},
		},
		{
			name:    "missing recipient",
			req:     SendMessageRequest{ClientMsgId: "cm-1", Content: "x"},
			wantErr: errcode.ErrInvalidParam,
		},
		{
			name:    "missing client msg id",
			req:     SendMessageRequest{RecvId: recv, Content: "x"},
			wantErr: errcode.ErrInvalidParam,
		},
		{
			name:    "self",
			req:     SendMessageRequest{ClientMsgId: "cm-1", RecvId: sender, Content: "x"},
			wantErr: errcode.ErrCannotChatSelf,
		},
		{
			name:    "whitespace only",
			req:     SendMessageRequest{ClientMsgId: "cm-1", RecvId: recv, Content: " \n\t"},
			wantErr: errcode.ErrMessageEmpty,
		},
		{
			name:    "too long",
			req:     SendMessageRequest{ClientMsgId: "cm-1", RecvId: recv, Content: strings.Repeat("é", constant.MaxContentLength+1)},
			wantErr: errcode.ErrInvalidParam,
		},
		{
			name:    "conversation of someone else",
			req:     SendMessageRequest{ClientMsgId: "cm-1", ConversationId: entity.GenSingleConversationId(recv, "di__3"), RecvId: recv, Content: "x"},
			wantErr: errcode.ErrNotParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.validate(sender)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, convId, got)
		})
	}
}

func TestSendMessageRequest_Validate_MaxLengthCountsRunes(t *testing.T) {
	req := SendMessageRequest{ClientMsgId: "cm-1", RecvId: "cl__1", Content: strings.Repeat("é", constant.MaxContentLength)}
	_, err := req.validate("in__2")
	assert.NoError(t, err)
}
