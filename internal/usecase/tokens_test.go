package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

func TestGenerateRoomID(t *testing.T) {
	id1, err := GenerateRoomID()
	require.NoError(t, err)
	id2, err := GenerateRoomID()
	require.NoError(t, err)

	assert.Len(t, id1, domain.RoomIDBytes*2)
	assert.NotEqual(t, id1, id2)
	assert.NoError(t, domain.ValidateRoomID(id1))
}

func TestGenerateCreatorToken(t *testing.T) {
	token, err := GenerateCreatorToken()
	require.NoError(t, err)
	assert.Len(t, token, domain.CreatorTokenBytes*2)
}
