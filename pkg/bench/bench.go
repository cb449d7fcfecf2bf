// Package bench replays a query workload with both search strategies and
// reports visited blocks and timings side by side.
package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/query"
)

// DefaultExecutions is the number of runs averaged per query and strategy
const DefaultExecutions = 5

// Header is the first row of the results file
var Header = []string{
	"from", "to", "expected", "distance",
	"linearSolution", "linearVisited", "linearTime",
	"skipSolution", "skipVisited", "skipTime",
	"agree",
}

// Query is one workload entry. Expected is query.NotFound when unknown.
type Query struct {
	From     uint64
	To       uint64
	Expected uint64
}

// Row is the outcome of one benchmarked query. Times are averages.
type Row struct {
	Query
	Linear     query.Result
	Skip       query.Result
	LinearTime time.Duration
	SkipTime   time.Duration
}

// Agree reports whether both strategies returned the same block
func (r Row) Agree() bool {
	return r.Linear.ID == r.Skip.ID
}

// Summary aggregates a run
type Summary struct {
	Queries       int
	Disagreements int
	LinearVisited int
	SkipVisited   int
	LinearTime    time.Duration
	SkipTime      time.Duration
}

// Runner executes workloads against an engine
type Runner struct {
	engine     *query.Engine
	event      event.Event
	membership query.Membership
	executions int
	logger     *zap.Logger
}

// NewRunner creates a runner for one event. executions < 1 uses DefaultExecutions.
func NewRunner(engine *query.Engine, ev event.Event, m query.Membership, executions int, log *zap.Logger) *Runner {
	if executions < 1 {
		executions = DefaultExecutions
	}
	return &Runner{
		engine:     engine,
		event:      ev,
		membership: m,
		executions: executions,
		logger:     logger.WithComponent(log, logger.ComponentBench),
	}
}

// ReadQueries parses "from,to[,expected]" lines. Blank lines and lines
// starting with '#' are skipped, as is a header whose first field is "from".
func ReadQueries(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var out []Query
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "from") {
			continue
		}
		if len(rec) < 2 || len(rec) > 3 {
			return nil, fmt.Errorf("line %d: want 2 or 3 fields, got %d", line, len(rec))
		}

		q := Query{Expected: query.NotFound}
		if q.From, err = parseBlock(rec[0]); err != nil {
			return nil, fmt.Errorf("line %d: from: %w", line, err)
		}
		if q.To, err = parseBlock(rec[1]); err != nil {
			return nil, fmt.Errorf("line %d: to: %w", line, err)
		}
		if len(rec) == 3 && strings.TrimSpace(rec[2]) != "" {
			if q.Expected, err = parseBlock(rec[2]); err != nil {
				return nil, fmt.Errorf("line %d: expected: %w", line, err)
			}
		}
		out = append(out, q)
	}
}

func parseBlock(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

// RunQuery benchmarks one query
func (r *Runner) RunQuery(ctx context.Context, q Query) (Row, error) {
	row := Row{Query: q}

	var total time.Duration
	for i := 0; i < r.executions; i++ {
		start := time.Now()
		res, err := r.engine.LinearSearch(ctx, q.From, q.To, r.event, r.membership)
		total += time.Since(start)
		if err != nil {
			return row, fmt.Errorf("linear search [%d,%d]: %w", q.From, q.To, err)
		}
		row.Linear = res
	}
	row.LinearTime = total / time.Duration(r.executions)

	total = 0
	for i := 0; i < r.executions; i++ {
		start := time.Now()
		res, err := r.engine.FindFirst(ctx, q.From, q.To, r.event, r.membership)
		total += time.Since(start)
		if err != nil {
			return row, fmt.Errorf("skip search [%d,%d]: %w", q.From, q.To, err)
		}
		row.Skip = res
	}
	row.SkipTime = total / time.Duration(r.executions)

	if !row.Agree() {
		r.logger.Error("strategies disagree",
			zap.Uint64("from", q.From),
			zap.Uint64("to", q.To),
			zap.Uint64("linear", row.Linear.ID),
			zap.Uint64("skip", row.Skip.ID),
		)
	}
	return row, nil
}

// Run benchmarks every query and writes one CSV row per query to w
func (r *Runner) Run(ctx context.Context, queries []Query, w io.Writer) (Summary, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		row, err := r.RunQuery(ctx, q)
		if err != nil {
			return sum, err
		}
		if err := cw.Write(row.Record()); err != nil {
			return sum, err
		}

		sum.Queries++
		if !row.Agree() {
			sum.Disagreements++
		}
		sum.LinearVisited += row.Linear.Count
		sum.SkipVisited += row.Skip.Count
		sum.LinearTime += row.LinearTime
		sum.SkipTime += row.SkipTime
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return sum, err
	}

	r.logger.Info("benchmark finished",
		zap.Int("queries", sum.Queries),
		zap.Int("disagreements", sum.Disagreements),
		zap.Int("linearVisited", sum.LinearVisited),
		zap.Int("skipVisited", sum.SkipVisited),
		zap.Duration("linearTime", sum.LinearTime),
		zap.Duration("skipTime", sum.SkipTime),
	)
	return sum, nil
}

// Record formats the row in Header order. Unknown and missing blocks are
// written as -1, times in nanoseconds.
func (r Row) Record() []string {
	distance := "-1"
	if r.Expected != query.NotFound && r.Expected >= r.From {
		distance = strconv.FormatUint(r.Expected-r.From, 10)
	}
	return []string{
		strconv.FormatUint(r.From, 10),
		strconv.FormatUint(r.To, 10),
		blockField(r.Expected),
		distance,
		blockField(r.Linear.ID),
		strconv.Itoa(r.Linear.Count),
		strconv.FormatInt(r.LinearTime.Nanoseconds(), 10),
		blockField(r.Skip.ID),
		strconv.Itoa(r.Skip.Count),
		strconv.FormatInt(r.SkipTime.Nanoseconds(), 10),
		strconv.FormatBool(r.Agree()),
	}
}

func blockField(id uint64) string {
	if id == query.NotFound {
		return "-1"
	}
	return strconv.FormatUint(id, 10)
}
