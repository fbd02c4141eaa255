package orchestrator

// State is a step of the extraction state machine.
type State string

// States in the order a successful run visits them. BlockedPageDetected, Verifying and Verified are conditional;
// Failed is reachable from any state.
const (
	StateStart               State = "start"
	StatePageLoaded          State = "page_loaded"
	StateBlockedPageDetected State = "blocked_page_detected"
	StateContentSettled      State = "content_settled"
	StateClassified          State = "classified"
	StateExtracted           State = "extracted"
	StatePersisted           State = "persisted"
	StateVerifying           State = "verifying"
	StateVerified            State = "verified"
	StateDelivered           State = "delivered"
	StateDone                State = "done"
	StateFailed              State = "failed"
)
