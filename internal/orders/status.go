package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool { return s.Valid() && len(validNext[s]) == 0 }

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// checkTransition validates from -> to, additionally requiring from to be
// one of allowedFrom when given.
func checkTransition(from, to Status, allowedFrom []Status) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	if len(allowedFrom) == 0 {
		return nil
	}
	for _, s := range allowedFrom {
		if s == from {
			return nil
		}
	}
	return &IllegalTransitionError{From: from, To: to}
}
