package query

import (
	"errors"
	"math"
	"time"
)

// NotFound is the Result.ID of a query without a match
const NotFound uint64 = math.MaxUint64

// ErrInvalidRange is returned for from > to or a range past the index end
var ErrInvalidRange = errors.New("query: invalid block range")

// Result is the outcome of one search
type Result struct {
	// ID is the first matching block, or NotFound
	ID uint64 `json:"id"`

	// Count is the number of blocks whose filter or events were examined
	Count int `json:"count"`

	StorageReads   int `json:"storageReads"`
	FalsePositives int `json:"falsePositives"`

	// Jumps counts misses that skipped more than one block
	Jumps int `json:"jumps"`
}

// Found reports whether the search matched a block
func (r Result) Found() bool {
	return r.ID != NotFound
}

// Comparison holds a linear and a skip search of the same query
type Comparison struct {
	Linear     Result        `json:"linear"`
	Skip       Result        `json:"skip"`
	LinearTime time.Duration `json:"linearTime"`
	SkipTime   time.Duration `json:"skipTime"`
}

// Agree reports whether both searches returned the same block
func (c Comparison) Agree() bool {
	return c.Linear.ID == c.Skip.ID
}
