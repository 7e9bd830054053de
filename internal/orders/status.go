package orders

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusVerified: true, StatusRejected: true},
	StatusVerified: {},
	StatusRejected: {},
}

// CanTransition reports whether from -> to is a legal move. Verified and
// rejected are terminal: the first admin decision is final.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
