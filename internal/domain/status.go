package domain

// Status is the outcome of one optimization or allocation run.
type Status string

const (
	StatusOptimal      Status = "Optimal"
	StatusFeasible     Status = "Feasible"
	StatusInfeasible   Status = "Infeasible"
	StatusNotSolved    Status = "NotSolved"
	StatusNoCandidates Status = "NoCandidates"
	StatusError        Status = "Error"
)

// Solved reports whether the status carries allocations.
func (s Status) Solved() bool {
	return s == StatusOptimal || s == StatusFeasible
}
