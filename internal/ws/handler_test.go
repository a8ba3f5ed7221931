package ws

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match3-backend/internal/board"
	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/types"
)

func intp(n int) *int { return &n }

func TestToEngineCommand(t *testing.T) {
	v := validator.New()

	cmd, err := toEngineCommand(types.ClientMessage{Type: types.MsgSelectCell, Row: intp(2), Col: intp(0)}, v)
	require.NoError(t, err)
	assert.Equal(t, engine.CmdSelectCell, cmd.Type)
	assert.Equal(t, 2, cmd.Row)
	assert.Equal(t, 0, cmd.Col)

	cmd, err = toEngineCommand(types.ClientMessage{Type: types.MsgSetReady, Ready: true}, v)
	require.NoError(t, err)
	assert.Equal(t, engine.CmdSetReady, cmd.Type)
	assert.True(t, cmd.Ready)

	chain := []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}
	cmd, err = toEngineCommand(types.ClientMessage{Type: types.MsgSubmitChain, Cells: chain}, v)
	require.NoError(t, err)
	assert.Equal(t, chain, cmd.Chain)
}

func TestToEngineCommand_Rejects(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name string
		msg  types.ClientMessage
		want error
	}{
		{"select without col", types.ClientMessage{Type: types.MsgSelectCell, Row: intp(1)}, engine.ErrInvalidInput},
		{"negative row", types.ClientMessage{Type: types.MsgSelectCell, Row: intp(-1), Col: intp(0)}, engine.ErrInvalidInput},
		{"empty chain", types.ClientMessage{Type: types.MsgSubmitChain}, engine.ErrInvalidInput},
		{"second join", types.ClientMessage{Type: types.MsgJoin, Nickname: "x"}, engine.ErrAlreadyJoined},
		{"unknown", types.ClientMessage{Type: "dance"}, engine.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toEngineCommand(tt.msg, v)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
