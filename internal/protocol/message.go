package protocol

const (
	CommandSensorUpdate = "sensor-update"
	CommandBroadcast    = "broadcast"
	CommandPeerName     = "peer-name"
)

// Message is one decoded payload: a command and its positional arguments.
type Message struct {
	Command string
	Args    []Value
}

func NewMessage(command string, args ...Value) Message {
	return Message{Command: command, Args: args}
}

// Arg returns the i-th argument if present.
func (m Message) Arg(i int) (Value, bool) {
	if i < 0 || i >= len(m.Args) {
		return Value{}, false
	}
	return m.Args[i], true
}

// Pairs folds a flattened key/value argument list into a map. A trailing key
// without a value is dropped; later duplicates win.
func (m Message) Pairs() map[string]Value {
	out := make(map[string]Value, len(m.Args)/2)
	for i := 0; i+1 < len(m.Args); i += 2 {
		out[m.Args[i].String()] = m.Args[i+1]
	}
	return out
}

// Equal reports whether both messages carry the same command and arguments.
func (m Message) Equal(o Message) bool {
	if m.Command != o.Command || len(m.Args) != len(o.Args) {
		return false
	}
	for i := range m.Args {
		if m.Args[i].Kind() != o.Args[i].Kind() || !m.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}
