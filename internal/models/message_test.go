package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionsScanNilColumn(t *testing.T) {
	var r Reactions
	require.NoError(t, r.Scan(nil))
	assert.NotNil(t, r)
	assert.Empty(t, r)
}

func TestReactionsScanBytes(t *testing.T) {
	var r Reactions
	require.NoError(t, r.Scan([]byte(`{"u1":"love"}`)))
	assert.Equal(t, ReactionLove, r["u1"])
}

func TestReactionsValueRoundTrip(t *testing.T) {
	r := Reactions{"u1": ReactionHaha}
	val, err := r.Value()
	require.NoError(t, err)

	var back Reactions
	require.NoError(t, back.Scan(val))
	assert.Equal(t, r, back)
}

func TestReactionsReplacePerUser(t *testing.T) {
	// The column merge keys reactions by user id, so a user's new
	// reaction overwrites their old one and leaves others untouched.
	var r Reactions
	require.NoError(t, r.Scan([]byte(`{"u1":"like","u2":"wow"}`)))

	r["u1"] = ReactionLove

	val, err := r.Value()
	require.NoError(t, err)
	var back Reactions
	require.NoError(t, back.Scan(val))

	require.Len(t, back, 2)
	assert.Equal(t, ReactionLove, back["u1"])
	assert.Equal(t, ReactionWow, back["u2"])
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, ValidMessageType(TypeText))
	assert.True(t, ValidMessageType(TypeLocation))
	assert.False(t, ValidMessageType("holografia"))
	assert.False(t, ValidMessageType(""))
}

func TestValidReactionKind(t *testing.T) {
	assert.True(t, ValidReactionKind(ReactionAngry))
	assert.False(t, ValidReactionKind("meh"))
}
