package domain

import "time"

// ReviewAction is a requested change to a response's status.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
	ReviewActionEdit    ReviewAction = "edit"
	// ReviewActionSend is issued by the system once the customer dispatch succeeds.
	ReviewActionSend ReviewAction = "send"
)

// ReviewerActions are the actions a human reviewer can submit.
var ReviewerActions = []ReviewAction{ReviewActionApprove, ReviewActionReject, ReviewActionEdit}

// ActorSystem identifies transitions made without a human reviewer.
const ActorSystem = "system"

// IsValid reports whether a is a known action.
func (a ReviewAction) IsValid() bool {
	switch a {
	case ReviewActionApprove, ReviewActionReject, ReviewActionEdit, ReviewActionSend:
		return true
	}
	return false
}

// Target returns the status an action moves a response into.
func (a ReviewAction) Target() ResponseStatus {
	switch a {
	case ReviewActionApprove:
		return ResponseStatusApproved
	case ReviewActionReject:
		return ResponseStatusRejected
	case ReviewActionEdit:
		return ResponseStatusEdited
	case ReviewActionSend:
		return ResponseStatusSent
	}
	return ""
}

// transitions is the complete adjacency table. Any pair not listed is illegal.
var transitions = map[ResponseStatus]map[ReviewAction]ResponseStatus{
	ResponseStatusPendingReview: {
		ReviewActionApprove: ResponseStatusApproved,
		ReviewActionReject:  ResponseStatusRejected,
		ReviewActionEdit:    ResponseStatusEdited,
	},
	ResponseStatusApproved: {
		ReviewActionSend: ResponseStatusSent,
	},
	ResponseStatusEdited: {
		ReviewActionSend: ResponseStatusSent,
	},
}

// EvaluateTransition decides the outcome of applying action to a response in
// status current. A request whose target equals current is a no-op success.
func EvaluateTransition(current ResponseStatus, action ReviewAction) (next ResponseStatus, noop bool, err error) {
	if !action.IsValid() {
		return "", false, ErrInvalidAction
	}
	if to, ok := transitions[current][action]; ok {
		return to, false, nil
	}
	if current == action.Target() {
		return current, true, nil
	}
	return "", false, NewInvalidTransition(current, action)
}

// CanTransition reports whether from -> to is an edge of the table.
func CanTransition(from, to ResponseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReviewDecision records one applied status change.
type ReviewDecision struct {
	ID             string
	ResponseID     string
	Action         ReviewAction
	PreviousStatus ResponseStatus
	NewStatus      ResponseStatus
	Actor          string
	Reason         string
	// PreviousText holds the overwritten text for edit decisions.
	PreviousText string
	CreatedAt    time.Time
}
