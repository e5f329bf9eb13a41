package enums

import "fmt"

// ReturnRequestType says whether the customer wants money back or a replacement.
type ReturnRequestType string

const (
	ReturnRequestTypeReturn   ReturnRequestType = "return"
	ReturnRequestTypeExchange ReturnRequestType = "exchange"
)

var validReturnRequestTypes = []ReturnRequestType{
	ReturnRequestTypeReturn,
	ReturnRequestTypeExchange,
}

func (t ReturnRequestType) String() string {
	return string(t)
}

func (t ReturnRequestType) IsValid() bool {
	for _, candidate := range validReturnRequestTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseReturnRequestType converts raw input into a ReturnRequestType.
func ParseReturnRequestType(value string) (ReturnRequestType, error) {
	for _, candidate := range validReturnRequestTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request type %q", value)
}

// ReturnStatus tracks a return or exchange request through admin review.
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusCompleted ReturnStatus = "completed"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusCompleted,
}

// returnTransitions lists the statuses an admin may move a request to.
var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:  {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved: {ReturnStatusCompleted, ReturnStatusRejected},
}

func (s ReturnStatus) String() string {
	return string(s)
}

func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Open reports whether the request still blocks a new one for the same order.
func (s ReturnStatus) Open() bool {
	return s == ReturnStatusPending || s == ReturnStatusApproved
}

// CanMoveTo reports whether next is a legal admin transition from s.
func (s ReturnStatus) CanMoveTo(next ReturnStatus) bool {
	for _, candidate := range returnTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
