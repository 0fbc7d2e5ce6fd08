package zcommit

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGenericQueryDefaults(t *testing.T) {
	req, err := ParseGenericQuery(url.Values{"class": {"demo"}, "instance": {"build"}})
	require.NoError(t, err)

	n := req.Notification()
	assert.Equal(t, DefaultSender, n.Sender)
	assert.Equal(t, "demo", n.Class)
	assert.Equal(t, "build", n.Instance)
	assert.Equal(t, DefaultGenericZsig, n.Signature)
	assert.Equal(t, DefaultGenericMessage, n.Body)
}

func TestParseGenericQueryExplicit(t *testing.T) {
	req, err := ParseGenericQuery(url.Values{
		"class":    {"demo"},
		"instance": {"build"},
		"zsig":     {"ci"},
		"message":  {"build passed"},
		"sender":   {"ignored"},
	})
	require.NoError(t, err)

	n := req.Notification()
	assert.Equal(t, DefaultSender, n.Sender)
	assert.Equal(t, "ci", n.Signature)
	assert.Equal(t, "build passed", n.Body)
	assert.Contains(t, req.Describe(), "-c demo -i build")
}

func TestParseGenericQueryMissing(t *testing.T) {
	_, err := ParseGenericQuery(url.Values{"instance": {"x"}})
	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "class", fieldErr.Field)

	_, err = ParseGenericQuery(url.Values{"class": {"x"}})
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "instance", fieldErr.Field)
	assert.True(t, IsRequestFatal(err))
}
