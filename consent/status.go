package consent

// Status is the layered outcome of an audit.
type Status string

const (
	StatusPending         Status = "pending"
	StatusError           Status = "error"
	StatusFailed          Status = "failed"
	StatusSuccessBasic    Status = "success_basic"
	StatusSuccessDetailed Status = "success_detailed"
)

// Rank orders statuses by how much was achieved:
// success_detailed > success_basic > failed > error > pending.
func (s Status) Rank() int {
	switch s {
	case StatusSuccessDetailed:
		return 4
	case StatusSuccessBasic:
		return 3
	case StatusFailed:
		return 2
	case StatusError:
		return 1
	}
	return 0
}

// Terminal reports whether s ends the audit.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// allowed lists the legal transitions of the audit status machine.
var allowed = map[Status][]Status{
	StatusPending:      {StatusError, StatusFailed, StatusSuccessBasic},
	StatusSuccessBasic: {StatusSuccessDetailed},
}

// CanAdvance reports whether the status machine allows from -> to.
func CanAdvance(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Advance moves the result to status when the transition is legal and
// reports whether it did. Illegal transitions leave the result unchanged.
func (r *AuditResult) Advance(to Status, msg string) bool {
	if !CanAdvance(r.Status, to) {
		return false
	}
	r.Status = to
	r.StatusMsg = msg
	return true
}
