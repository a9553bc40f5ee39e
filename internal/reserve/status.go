package reserve

type Status string

const (
	StatusReserved Status = "reserved"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
)

// reserved is the only non-terminal state. Transitions out of it race
// (sweep vs. redemption) and are guarded by compare-and-set on the status
// inside a store transaction, never by mutual exclusion between the paths.
var validNext = map[Status]map[Status]bool{
	StatusReserved: {StatusVerified: true, StatusExpired: true},
	StatusVerified: {},
	StatusExpired:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
