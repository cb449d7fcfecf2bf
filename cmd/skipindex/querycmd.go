package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/config"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/query"
)

var (
	queryCommand = &cli.Command{
		Name:  "query",
		Usage: "Find the first block in [from, to] holding an event",
		Flags: append([]cli.Flag{
			fromFlag,
			toFlag,
			strategyFlag,
		}, searchFlags...),
		Action: runQuery,
	}
	fromFlag = &cli.Uint64Flag{
		Name:     "from",
		Usage:    "First block of the range",
		Required: true,
	}
	toFlag = &cli.Uint64Flag{
		Name:     "to",
		Usage:    "Last block of the range (inclusive)",
		Required: true,
	}
	strategyFlag = &cli.StringFlag{
		Name:  "strategy",
		Usage: "Search strategy (skip, linear, compare)",
		Value: query.StrategySkip,
	}
)

// searchFlags select the event and tune the engine
var searchFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "address",
		Usage:    "Emitting contract address (hex)",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "signature",
		Usage: "Event signature topic (hex)",
	},
	&cli.StringFlag{
		Name:  "signature-text",
		Usage: "Canonical event signature, hashed with Keccak-256, e.g. Transfer(address,address,uint256)",
	},
	&cli.StringFlag{
		Name:  "mode",
		Usage: "Membership test matching the filter mode of the index (default, extended)",
	},
	&cli.Float64Flag{
		Name:  "saturation-threshold",
		Usage: "Fill ratio above which a window is not used to jump",
	},
	&cli.IntFlag{
		Name:  "max-level",
		Usage: "Highest ladder level searched (0 = unbounded)",
	},
}

// searchResult is the printed form of a query.Result
type searchResult struct {
	Found          bool    `json:"found"`
	Block          *uint64 `json:"block,omitempty"`
	Count          int     `json:"count"`
	StorageReads   int     `json:"storageReads"`
	FalsePositives int     `json:"falsePositives"`
	Jumps          int     `json:"jumps"`
}

func newSearchResult(r query.Result) searchResult {
	out := searchResult{
		Found:          r.Found(),
		Count:          r.Count,
		StorageReads:   r.StorageReads,
		FalsePositives: r.FalsePositives,
		Jumps:          r.Jumps,
	}
	if r.Found() {
		id := r.ID
		out.Block = &id
	}
	return out
}

// parseEvent reads the event from --address and --signature or --signature-text
func parseEvent(ctx *cli.Context) (event.Event, error) {
	sig := ctx.String("signature")
	if text := ctx.String("signature-text"); text != "" {
		if sig != "" {
			return event.Event{}, errors.New("--signature and --signature-text are mutually exclusive")
		}
		sig = event.SignatureHash(text).Hex()
	}
	if sig == "" {
		return event.Event{}, errors.New("one of --signature or --signature-text is required")
	}
	return event.FromHex(ctx.String("address"), sig)
}

// applySearchFlags overrides the query configuration with command-line flags
func applySearchFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet("saturation-threshold") {
		cfg.Query.SaturationThreshold = ctx.Float64("saturation-threshold")
	}
	if ctx.IsSet("max-level") {
		cfg.Query.MaxLevel = ctx.Int("max-level")
	}
	if ctx.IsSet("mode") {
		cfg.Bloom.Mode = ctx.String("mode")
	}
}

func newEngine(cfg *config.Config, st *stores, log *zap.Logger, reg prometheus.Registerer) (*query.Engine, error) {
	opts := []query.Option{query.WithLogger(log)}
	if reg != nil {
		opts = append(opts, query.WithMetrics(query.NewMetrics(reg, "", "")))
	}
	return query.NewEngine(st.index, st.events, query.Config{
		SaturationThreshold: cfg.Query.SaturationThreshold,
		MaxLevel:            cfg.Query.MaxLevel,
	}, opts...)
}

func runQuery(ctx *cli.Context) error {
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

	st, err := openStores(cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg, st, log, nil)
	if err != nil {
		return err
	}

	from, to := ctx.Uint64(fromFlag.Name), ctx.Uint64(toFlag.Name)
	out := map[string]interface{}{
		"from":     from,
		"to":       to,
		"event":    ev.String(),
		"mode":     membership.Name(),
		"strategy": ctx.String(strategyFlag.Name),
	}

	switch ctx.String(strategyFlag.Name) {
	case query.StrategySkip:
		res, err := engine.FindFirst(ctx.Context, from, to, ev, membership)
		if err != nil {
			return err
		}
		out["result"] = newSearchResult(res)
	case query.StrategyLinear:
		res, err := engine.LinearSearch(ctx.Context, from, to, ev, membership)
		if err != nil {
			return err
		}
		out["result"] = newSearchResult(res)
	case "compare":
		cmp, err := engine.Compare(ctx.Context, from, to, ev, membership)
		if err != nil {
			return err
		}
		out["linear"] = newSearchResult(cmp.Linear)
		out["skip"] = newSearchResult(cmp.Skip)
		out["linearTime"] = cmp.LinearTime.String()
		out["skipTime"] = cmp.SkipTime.String()
		out["agree"] = cmp.Agree()
	default:
		return fmt.Errorf("unknown strategy %q, must be one of: skip, linear, compare", ctx.String(strategyFlag.Name))
	}

	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
