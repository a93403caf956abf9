package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewRoomID(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    RoomID
		wantErr error
	}{
		{name: "trimmed", raw: "  abcd  ", want: "abcd"},
		{name: "too short", raw: "abc", wantErr: ErrRoomIDTooShort},
		{name: "short after trim", raw: "  ab  ", wantErr: ErrRoomIDTooShort},
		{name: "empty", raw: "   ", wantErr: ErrInvalidRoomID},
		{name: "case kept", raw: "AbCd", want: "AbCd"},
		{name: "multibyte counts runes", raw: "ёжик", want: "ёжик"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseNewRoomID(tc.raw)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRoomIDAllowsShortIDs(t *testing.T) {
	id, err := ParseRoomID(" ab ")
	require.NoError(t, err)
	assert.Equal(t, RoomID("ab"), id)
}

func TestNormalizeChat(t *testing.T) {
	got, err := NormalizeChat("  hi there ")
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)

	_, err = NormalizeChat("   ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NormalizeChat(strings.Repeat("x", MaxChatLen+1))
	require.ErrorIs(t, err, ErrMessageTooLong)
}

func TestSenderName(t *testing.T) {
	assert.Equal(t, "User abcdef", SenderName("abcdef-1234", ""))
	assert.Equal(t, "User ab", SenderName("ab", " "))
	assert.Equal(t, "Alice", SenderName("abcdef", " Alice "))
}

func TestTokenFingerprintNamespace(t *testing.T) {
	assert.Empty(t, TokenFingerprint(""))
	fp := TokenFingerprint("abc")
	assert.NotEqual(t, Fingerprint("abc"), fp)
	assert.False(t, fp.Explicit())
	assert.True(t, Fingerprint("fp_1").Explicit())
	assert.False(t, Fingerprint("").Explicit())
}
