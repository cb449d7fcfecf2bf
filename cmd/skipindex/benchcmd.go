package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/constants"
	"github.com/0xmhha/skipindex-go/pkg/bench"
	"github.com/0xmhha/skipindex-go/pkg/query"
)

var (
	benchCommand = &cli.Command{
		Name:  "bench",
		Usage: "Replay a query workload with both strategies and write a CSV report",
		Flags: append([]cli.Flag{
			queriesFileFlag,
			outFileFlag,
			executionsFlag,
		}, searchFlags...),
		Action: runBench,
	}
	queriesFileFlag = &cli.StringFlag{
		Name:     "queries",
		Usage:    "CSV workload of from,to[,expected] lines",
		Required: true,
	}
	outFileFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Report file (default: stdout)",
	}
	executionsFlag = &cli.IntFlag{
		Name:  "executions",
		Usage: "Timed runs per query and strategy",
		Value: constants.DefaultBenchExecutions,
	}
)

func runBench(ctx *cli.Context) error {
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	applySearchFlags(ctx, cfg)

	ev, err := parseEvent(ctx)
	if err != nil {
		return err
	}
	membership, err := query.MembershipByName(cfg.Bloom.Mode)
	if err != nil {
		return err
	}

	in, err := os.Open(ctx.String(queriesFileFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to open queries: %w", err)
	}
	defer in.Close()
	queries, err := bench.ReadQueries(in)
	if err != nil {
		return fmt.Errorf("failed to read queries: %w", err)
	}

	var out io.Writer = ctx.App.Writer
	if path := ctx.String(outFileFlag.Name); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		out = f
	}

	st, err := openStores(cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg, st, log, nil)
	if err != nil {
		return err
	}

	runner := bench.NewRunner(engine, ev, membership, ctx.Int(executionsFlag.Name), log)
	sum, err := runner.Run(ctx.Context, queries, out)
	if err != nil {
		return err
	}
	if sum.Disagreements > 0 {
		log.Warn("strategies disagreed", zap.Int("queries", sum.Disagreements))
		return fmt.Errorf("%d of %d queries disagree", sum.Disagreements, sum.Queries)
	}
	return nil
}
