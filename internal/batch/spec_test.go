package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/chatmover/internal/domain"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Spec
	}{
		{
			name: "public single id",
			raw:  "https://t.me/somechannel/4321",
			want: Spec{Chat: "somechannel", From: 4321, To: 4321},
		},
		{
			name: "public range",
			raw:  "https://t.me/somechannel/1001-1010",
			want: Spec{Chat: "somechannel", From: 1001, To: 1010},
		},
		{
			name: "spaces around the dash",
			raw:  "https://t.me/c/2158103/101 - 120",
			want: Spec{Chat: "-1002158103", From: 101, To: 120},
		},
		{
			name: "private single id",
			raw:  "https://t.me/c/2158103/55",
			want: Spec{Chat: "-1002158103", From: 55, To: 55},
		},
		{
			name: "private topic range",
			raw:  "https://t.me/c/2158103/77/1001-1010",
			want: Spec{Chat: "-1002158103", Thread: 77, From: 1001, To: 1010},
		},
		{
			name: "no scheme",
			raw:  "t.me/somechannel/12",
			want: Spec{Chat: "somechannel", From: 12, To: 12},
		},
		{
			name: "reversed range normalized",
			raw:  "https://t.me/somechannel/1010-1001",
			want: Spec{Chat: "somechannel", From: 1001, To: 1010},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpec(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSpecErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"https://t.me/somechannel",
		"https://t.me/somechannel/notanumber",
		"https://t.me/c/notdigits/55",
		"https://t.me/somechannel/0",
	} {
		_, err := ParseSpec(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestSpecLen(t *testing.T) {
	assert.Equal(t, 10, Spec{From: 1001, To: 1010}.Len())
	assert.Equal(t, 1, Spec{From: 5, To: 5}.Len())
}

func TestIsInviteLink(t *testing.T) {
	assert.True(t, IsInviteLink("https://t.me/+AbCdEf123"))
	assert.True(t, IsInviteLink("https://t.me/joinchat/AbCdEf123"))
	assert.False(t, IsInviteLink("https://t.me/somechannel/55"))
}

func TestRangeDashBeatsTrailingSegment(t *testing.T) {
	// The dash form wins even when the trailing segment alone would parse.
	got, err := ParseSpec("https://t.me/c/2158103/101-120")
	require.NoError(t, err)
	assert.Equal(t, domain.ChatID("-1002158103"), got.Chat)
	assert.EqualValues(t, 101, got.From)
	assert.EqualValues(t, 120, got.To)
}
