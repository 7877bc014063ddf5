package provisioning

// State is a step of the provisioning state machine:
//
//	Validating -> EnsuringGroup -> AllocatingID -> RegisteringDevice -> EnsuringSubscription -> Done
//
// Any step may move to Failed, which is terminal.
type State string

const (
	StateValidating           State = "validating"
	StateEnsuringGroup        State = "ensuring_group"
	StateAllocatingID         State = "allocating_id"
	StateRegisteringDevice    State = "registering_device"
	StateEnsuringSubscription State = "ensuring_subscription"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Stages lists the working states in execution order.
var Stages = []State{
	StateValidating,
	StateEnsuringGroup,
	StateAllocatingID,
	StateRegisteringDevice,
	StateEnsuringSubscription,
}

func (s State) String() string {
	return string(s)
}
