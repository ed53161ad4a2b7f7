package source

import "time"

// reconnectAttempt is the retry state for one disconnect. A fresh value is made
// for every disconnect so attempt numbering always starts at 1.
type reconnectAttempt struct {
	tries int
	delay time.Duration
	n     int
}

func newReconnectAttempt(tries int, delay time.Duration) reconnectAttempt {
	return reconnectAttempt{tries: tries, delay: delay}
}

// next advances to the following attempt, false once the budget is spent
func (r *reconnectAttempt) next() bool {
	if r.n >= r.tries {
		return false
	}
	r.n++
	return true
}

// attempt is the current 1-based attempt index
func (r *reconnectAttempt) attempt() int {
	return r.n
}

// last reports whether the current attempt is the final one
func (r *reconnectAttempt) last() bool {
	return r.n >= r.tries
}
