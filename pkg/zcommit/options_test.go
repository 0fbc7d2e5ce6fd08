package zcommit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsPairs(t *testing.T) {
	opts, err := ParseOptions([]string{"class", "demo", "instance", "commits", "zsig", "bot", "sender", "me", "color", "red"})
	require.NoError(t, err)

	assert.Equal(t, "demo", opts.Class)
	assert.Equal(t, "commits", opts.Instance)
	assert.Equal(t, "bot", opts.Zsig)
	assert.Equal(t, "me", opts.Sender)
	assert.Equal(t, map[string]string{"color": "red"}, opts.Extra)
	assert.Len(t, opts.Map(), 5)
}

func TestParseOptionsEntryCount(t *testing.T) {
	cases := [][]string{
		{"class", "a"},
		{"class", "a", "instance", "b"},
		{"class", "a", "instance", "b", "x", "1", "y", "2"},
	}
	for _, segments := range cases {
		opts, err := ParseOptions(segments)
		require.NoError(t, err)
		m := opts.Map()
		assert.Len(t, m, len(segments)/2)
		for i := 0; i < len(segments); i += 2 {
			assert.Equal(t, segments[i+1], m[segments[i]])
		}
	}
}

func TestParseOptionsOddSegments(t *testing.T) {
	for _, segments := range [][]string{
		{"class"},
		{"class", "demo", "instance"},
		{"a", "b", "c", "d", "e"},
	} {
		_, err := ParseOptions(segments)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedRequest), "segments %v", segments)
	}
}

func TestParseOptionsMissingClass(t *testing.T) {
	_, err := ParseOptions([]string{"instance", "x"})
	require.Error(t, err)

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "class", fieldErr.Field)
	assert.True(t, errors.Is(err, ErrMissingRequiredField))

	_, err = ParseOptions(nil)
	assert.True(t, errors.Is(err, ErrMissingRequiredField))
}

func TestParseOptionsLastWriteWins(t *testing.T) {
	opts, err := ParseOptions([]string{"class", "first", "class", "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", opts.Class)
}

func TestParseOptionsLossyUTF8(t *testing.T) {
	opts, err := ParseOptions([]string{"class", "caf\xe9", "instance", "ok"})
	require.NoError(t, err)
	assert.Equal(t, "caf\uFFFD", opts.Class)
}

func TestOptionsSignatureAndSender(t *testing.T) {
	opts := Options{Class: "demo"}
	assert.Equal(t, "refs/heads/main", opts.Signature("refs/heads/main"))
	assert.Equal(t, DefaultSender, opts.SenderOrDefault())

	opts.Zsig = "X"
	opts.Sender = "someone"
	assert.Equal(t, "X: refs/heads/main", opts.Signature("refs/heads/main"))
	assert.Equal(t, "someone", opts.SenderOrDefault())
}

func TestOptionsString(t *testing.T) {
	opts := Options{Class: "demo", Instance: "i", Extra: map[string]string{"a": "b"}}
	assert.Equal(t, "a=b class=demo instance=i", opts.String())
}

func TestParseOptionsEmptyValuesArePresent(t *testing.T) {
	opts, err := ParseOptions([]string{"class", "", "instance", ""})
	require.NoError(t, err)
	assert.Equal(t, "", opts.Class)
	assert.True(t, opts.HasInstance())
	assert.Equal(t, map[string]string{"class": "", "instance": ""}, opts.Map())

	opts, err = ParseOptions([]string{"class", "demo"})
	require.NoError(t, err)
	assert.False(t, opts.HasInstance())
}
