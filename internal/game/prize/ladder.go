// Package prize implements the prize ladder with safe checkpoints.
package prize

import (
	"errors"
	"fmt"
)

// Ladder errors.
var (
	ErrEmptyLadder    = errors.New("prize ladder must have at least one rung")
	ErrNotIncreasing  = errors.New("prize amounts must be strictly increasing")
	ErrSafeOutOfRange = errors.New("safe rung outside the ladder")
)

// referenceAmounts is the 15-rung ladder; rungs 5 and 10 are safe.
var referenceAmounts = []int64{
	100, 200, 300, 500, 1000,
	1500, 2000, 3000, 4000, 5000,
	7500, 10000, 15000, 25000, 50000,
}

var referenceSafe = []int{5, 10}

// Ladder maps a 1-based question number to its prize. It is immutable once built.
type Ladder struct {
	amounts []int64
	safe    map[int]bool
}

// New builds a ladder from prize amounts (rung 1 first) and the safe rung numbers.
func New(amounts []int64, safe []int) (*Ladder, error) {
	if len(amounts) == 0 {
		return nil, ErrEmptyLadder
	}
	for i := 1; i < len(amounts); i++ {
		if amounts[i] <= amounts[i-1] {
			return nil, fmt.Errorf("%w: rung %d (%d) <= rung %d (%d)", ErrNotIncreasing, i+1, amounts[i], i, amounts[i-1])
		}
	}

	l := &Ladder{
		amounts: append([]int64(nil), amounts...),
		safe:    make(map[int]bool, len(safe)),
	}
	for _, q := range safe {
		if q < 1 || q > len(amounts) {
			return nil, fmt.Errorf("%w: %d", ErrSafeOutOfRange, q)
		}
		l.safe[q] = true
	}
	return l, nil
}

// Reference returns the standard 15-rung ladder.
func Reference() *Ladder {
	l, err := New(referenceAmounts, referenceSafe)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of rungs.
func (l *Ladder) Len() int {
	return len(l.amounts)
}

// Prize returns the prize for question q, or 0 when q is outside the ladder.
func (l *Ladder) Prize(q int) int64 {
	if q < 1 || q > len(l.amounts) {
		return 0
	}
	return l.amounts[q-1]
}

// IsSafe reports whether question q is a safe checkpoint.
func (l *Ladder) IsSafe(q int) bool {
	return l.safe[q]
}

// GuaranteedBelow returns the prize of the highest safe rung strictly below q.
// A player failing question q walks away with this amount.
func (l *Ladder) GuaranteedBelow(q int) int64 {
	if q > len(l.amounts)+1 {
		q = len(l.amounts) + 1
	}
	for r := q - 1; r >= 1; r-- {
		if l.safe[r] {
			return l.amounts[r-1]
		}
	}
	return 0
}

// SafeRungs returns the safe rung numbers in ascending order.
func (l *Ladder) SafeRungs() []int {
	rungs := make([]int, 0, len(l.safe))
	for q := 1; q <= len(l.amounts); q++ {
		if l.safe[q] {
			rungs = append(rungs, q)
		}
	}
	return rungs
}

// Rungs returns a copy of the prize amounts, rung 1 first.
func (l *Ladder) Rungs() []int64 {
	return append([]int64(nil), l.amounts...)
}
