package shmseg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vedarsh/kachow/pkg/exception"
)

func TestSanitizeTopic(t *testing.T) {
	valid := []string{
		"ticks",
		"market.btc-usd",
		"a",
		"topic_with_underscores",
		strings.Repeat("x", MaxTopicLen),
	}
	for _, name := range valid {
		got, err := SanitizeTopic(name)
		assert.NoError(t, err, "name %q", name)
		assert.Equal(t, name, got)
	}

	invalid := []string{
		"",
		"../escape",
		"a/../../etc/passwd",
		"/dev/mem",
		"nested/topic",
		"back\\slash",
		"nul\x00byte",
		"bell\x07",
		"del\x7f",
		strings.Repeat("x", MaxTopicLen+1),
		strings.Repeat("y", 256),
	}
	for _, name := range invalid {
		_, err := SanitizeTopic(name)
		assert.ErrorIs(t, err, exception.ErrInvalidTopicName, "name %q", name)
	}
}
