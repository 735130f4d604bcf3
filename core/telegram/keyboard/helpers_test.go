package keyboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyButtons(t *testing.T) {
	req := require.New(t)

	markup := ReplyButtons([][]string{{"Yes", "No"}, {"Cancel"}}, ReplyOptions{Resize: true})
	req.True(markup.ResizeKeyboard)
	req.False(markup.OneTimeKeyboard)
	req.Len(markup.ReplyKeyboard, 2)
	req.Len(markup.ReplyKeyboard[0], 2)
	req.Equal("Yes", markup.ReplyKeyboard[0][0].Text)
	req.Equal("Cancel", markup.ReplyKeyboard[1][0].Text)
}

func TestRemoveKeyboard(t *testing.T) {
	req := require.New(t)
	req.True(RemoveKeyboard().RemoveKeyboard)
	req.True(ForceReply().ForceReply)
}

func TestChunkLabels(t *testing.T) {
	req := require.New(t)

	req.Equal([][]string{{"a"}, {"b"}, {"c"}}, ChunkLabels([]string{"a", "b", "c"}, 1))
	req.Equal([][]string{{"a", "b"}, {"c"}}, ChunkLabels([]string{"a", "b", "c"}, 2))
	req.Empty(ChunkLabels(nil, 3))
}
