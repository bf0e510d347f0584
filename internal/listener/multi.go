package listener

import "github.com/cbout22/repofetch/internal/transport"

// Multi forwards every notification to each listener in order.
type Multi []transport.Listener

var _ transport.Listener = Multi(nil)

// NewMulti drops nil listeners. With a single listener left it returns that
// listener unchanged; with none it returns nil.
func NewMulti(ls ...transport.Listener) transport.Listener {
	var m Multi
	for _, l := range ls {
		if l != nil {
			m = append(m, l)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

func (m Multi) TransferEvent(ev transport.Event) {
	for _, l := range m {
		l.TransferEvent(ev)
	}
}

func (m Multi) Debug(message string) {
	for _, l := range m {
		l.Debug(message)
	}
}

// transferKey identifies one transfer among those running concurrently
// against different endpoints.
func transferKey(ev transport.Event) string {
	return ev.Endpoint + "\x00" + ev.Resource
}
