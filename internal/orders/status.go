package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Invoice orders start pending and are settled later; card orders are written
// completed directly. Nothing moves an order back.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPending: true, StatusCompleted: true},
	StatusCompleted: {StatusCompleted: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Merge returns the status a stored order ends up with when next is written
// over current.
func Merge(current, next Status) Status {
	if current == "" || CanTransition(current, next) {
		return next
	}
	return current
}
