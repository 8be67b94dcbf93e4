package relayengine

// State is a point in the request lifecycle of spec.md §4.4, surfaced to
// the event bus so the shell's progress UI can render each transfer.
type State string

const (
	StatePending    State = "pending"
	StatePreparing  State = "preparing"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateNetworkErr State = "network_error"
	StateCancelled  State = "cancelled"
	StateCertErr    State = "cert_error"
	StateTimeout    State = "timeout"
)
