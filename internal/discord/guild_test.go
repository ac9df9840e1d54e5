package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGuilds(t *testing.T) {
	guilds, err := DecodeGuilds([]byte(`[
		{"id":"80351110224678912","name":"1337 Krew","icon":"8342729096ea3675442027381ff50dfe","owner":true,"permissions":"36953089"},
		{"id":"2","name":"Legacy","icon":null,"owner":false,"permissions":8}
	]`))
	require.NoError(t, err)
	require.Len(t, guilds, 2)

	assert.Equal(t, Snowflake(80351110224678912), guilds[0].ID)
	assert.True(t, guilds[0].Owner)
	assert.Equal(t, Permissions(36953089), guilds[0].Permissions)
	assert.Equal(t, "1337 Krew", guilds[0].String())

	assert.Empty(t, guilds[1].IconHash)
	assert.True(t, guilds[1].Permissions.Has(PermissionAdministrator))
	assert.True(t, guilds[1].Permissions.Has(PermissionBanMembers), "administrator implies all")
}

func TestDecodeGuilds_Empty(t *testing.T) {
	guilds, err := DecodeGuilds([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, guilds)
	assert.Empty(t, guilds)
}

func TestDecodeGuilds_Malformed(t *testing.T) {
	_, err := DecodeGuilds([]byte(`[{"id":"1","name":"a"},{"name":"b"}]`))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = DecodeGuilds([]byte(`{"id":"1"}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPermissions_Has(t *testing.T) {
	p := PermissionKickMembers | PermissionManageGuild
	assert.True(t, p.Has(PermissionKickMembers))
	assert.True(t, p.Has(PermissionKickMembers|PermissionManageGuild))
	assert.False(t, p.Has(PermissionBanMembers))
}

func TestGuild_IconURL(t *testing.T) {
	g := Guild{ID: 5, IconHash: "a_icon"}
	url, err := g.IconURL(testImages, 128)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/icons/5/a_icon.gif?size=128", url)

	url, err = Guild{ID: 5}.IconURL(testImages, 128)
	require.NoError(t, err)
	assert.Empty(t, url)

	_, err = g.IconURL(testImages, 15)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
