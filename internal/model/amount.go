package model

import "math"

// CalcRequest is the verbatim (hours, rate) pair sent to the amount oracle.
// Two requests are identical iff both strings match exactly.
type CalcRequest struct {
	Hours string
	Rate  string
}

// Amount is an oracle result: a finite value or a failure.
type Amount struct {
	Value float64
	OK    bool
}

// AmountOf returns a successful result. Non-finite values become failures.
func AmountOf(v float64) Amount {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}
	}
	return Amount{Value: v, OK: true}
}

// AmountFailed is the failure marker.
func AmountFailed() Amount {
	return Amount{}
}

// Float returns the value, or NaN for a failure. NaN is the representation
// stored on records.
func (a Amount) Float() float64 {
	if !a.OK {
		return math.NaN()
	}
	return a.Value
}

// FailedAmounts returns n failure markers.
func FailedAmounts(n int) []Amount {
	return make([]Amount, n)
}
