package shmseg

import (
	"strings"

	"github.com/yanun0323/errors"

	"github.com/vedarsh/kachow/pkg/exception"
)

// MaxTopicLen bounds topic names in bytes.
const MaxTopicLen = 200

// SanitizeTopic validates a topic name before it becomes part of a
// filesystem resource identifier. Names must never be able to escape
// the segment namespace directory, so anything resembling a path, a
// NUL injection or a control sequence is rejected outright rather than
// rewritten.
func SanitizeTopic(name string) (string, error) {
	if name == "" {
		return "", errors.Wrap(exception.ErrInvalidTopicName, "empty name")
	}
	if len(name) > MaxTopicLen {
		return "", errors.Wrap(exception.ErrInvalidTopicName, "name too long").
			With("bytes", len(name))
	}
	if strings.Contains(name, "..") {
		return "", errors.Wrap(exception.ErrInvalidTopicName, "relative path sequence")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '/' || c == '\\':
			return "", errors.Wrap(exception.ErrInvalidTopicName, "path separator")
		case c < 0x20 || c == 0x7f:
			return "", errors.Wrap(exception.ErrInvalidTopicName, "control byte")
		}
	}
	return name, nil
}
