package supervisor

import "fmt"

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateServing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateServing:
		return "serving"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
