package shmbus

import (
	"fmt"

	"github.com/yanun0323/errors"

	"github.com/vedarsh/kachow/pkg/scanner"
)

// ControlTopic is the reserved topic cooperating processes poll for
// out-of-band commands. The transport has no signal-based shutdown, so
// a stop instruction travels the same way as any other message.
const ControlTopic = "sys.control"

// Command names understood by the stock demo processes. Applications
// are free to define their own.
const (
	CommandStop  = "stop"
	CommandStats = "stats"
)

// ErrBadCommand reports a control payload that does not parse.
var ErrBadCommand = errors.New("malformed control command")

// Command is one out-of-band instruction on the control topic.
type Command struct {
	Name string
	Seq  uint64
	Arg  string
}

// Encode renders the command as a small JSON object. The format stays
// hand-rolled on both sides so control messages can be produced and
// consumed without allocation.
func (c Command) Encode() []byte {
	if c.Arg == "" {
		return []byte(fmt.Sprintf(`{"cmd":%q,"seq":%d}`, c.Name, c.Seq))
	}
	return []byte(fmt.Sprintf(`{"cmd":%q,"seq":%d,"arg":%q}`, c.Name, c.Seq, c.Arg))
}

// DecodeCommand parses a control payload. Unknown fields are ignored;
// a missing cmd field is ErrBadCommand.
func DecodeCommand(payload []byte) (Command, error) {
	name, ok := scanner.ScanStringField(payload, []byte(`"cmd"`))
	if !ok || len(name) == 0 {
		return Command{}, ErrBadCommand
	}
	cmd := Command{Name: string(name)}
	if seq, ok := scanner.ScanUintField(payload, []byte(`"seq"`)); ok {
		cmd.Seq = seq
	}
	if arg, ok := scanner.ScanStringField(payload, []byte(`"arg"`)); ok {
		cmd.Arg = string(arg)
	}
	return cmd, nil
}
