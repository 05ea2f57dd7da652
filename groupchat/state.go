package groupchat

// State is a position in the conversation loop's state machine.
type State int32

const (
	Idle State = iota
	AwaitingUserInput
	RoutingTurn
	GeneratingReply
	CheckingTermination
	Completed
	Errored
	Shutdown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingUserInput:
		return "AwaitingUserInput"
	case RoutingTurn:
		return "RoutingTurn"
	case GeneratingReply:
		return "GeneratingReply"
	case CheckingTermination:
		return "CheckingTermination"
	case Completed:
		return "Completed"
	case Errored:
		return "Errored"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
