package gqlwsclient

// State of the session's connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return `disconnected`
	case Connecting:
		return `connecting`
	case Connected:
		return `connected`
	case Reconnecting:
		return `reconnecting`
	case Terminated:
		return `terminated`
	default:
		return `unknown`
	}
}
