package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusFailed: true},
	StatusPaid:      {StatusRefunded: true, StatusCancelled: true},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is permitted.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}
