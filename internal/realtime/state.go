package realtime

// State is the push-channel connection state:
//
//	Disconnected -> Connecting -> Connected -> Disconnected ...
//
// Every entry into Connected after the first triggers a resync.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Outcome is what Apply did with an event.
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUpdated
	OutcomeEvicted
	OutcomeRemoved
	OutcomeDuplicate
	OutcomeUnauthorized
	OutcomeIgnored
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeEvicted:
		return "evicted"
	case OutcomeRemoved:
		return "removed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}
