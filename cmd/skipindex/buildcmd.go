package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/pkg/builder"
	"github.com/0xmhha/skipindex-go/pkg/storage"
)

var (
	buildCommand = &cli.Command{
		Name:  "build",
		Usage: "Append blocks from an events file (and optional keys file) to the index",
		Flags: []cli.Flag{
			eventsFileFlag,
			keysFileFlag,
			mBitsFlag,
			hashCountFlag,
			maxLevelsFlag,
			modeFlag,
		},
		Action: runBuild,
	}
	eventsFileFlag = &cli.StringFlag{
		Name:     "events",
		Usage:    "Events file: per block id, count, then count x (address[20], topic[32])",
		Required: true,
	}
	keysFileFlag = &cli.StringFlag{
		Name:  "keys",
		Usage: "Keys file with the filter elements of each block",
	}
	mBitsFlag = &cli.UintFlag{
		Name:  "m-bits",
		Usage: "Filter size in bits for a new index (multiple of 64)",
	}
	hashCountFlag = &cli.UintFlag{
		Name:  "k",
		Usage: "Hash functions per element for a new index (1-8)",
	}
	maxLevelsFlag = &cli.IntFlag{
		Name:  "max-levels",
		Usage: "Ladder depth bound for a new index (1-32)",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "Filter mode (default, extended)",
	}
)

func runBuild(ctx *cli.Context) error {
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx.IsSet(mBitsFlag.Name) {
		cfg.Bloom.MBits = uint32(ctx.Uint(mBitsFlag.Name))
	}
	if ctx.IsSet(hashCountFlag.Name) {
		cfg.Bloom.K = uint8(ctx.Uint(hashCountFlag.Name))
	}
	if ctx.IsSet(maxLevelsFlag.Name) {
		cfg.Bloom.MaxLevels = ctx.Int(maxLevelsFlag.Name)
	}
	if ctx.IsSet(modeFlag.Name) {
		cfg.Bloom.Mode = ctx.String(modeFlag.Name)
	}
	mode, err := builder.ParseFilterMode(cfg.Bloom.Mode)
	if err != nil {
		return err
	}

	st, err := openStores(cfg, log, true)
	if errors.Is(err, storage.ErrNotFound) {
		cfg.ApplyBloomDefaults()
		st, err = openStores(cfg, log, true)
	}
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := builder.New(ctx.Context, st.index, st.events, mode, log)
	if err != nil {
		return err
	}

	log.Info("building index",
		zap.String("events", ctx.String(eventsFileFlag.Name)),
		zap.String("keys", ctx.String(keysFileFlag.Name)),
		zap.Stringer("params", st.index.Params()),
		zap.Int("max_levels", st.index.MaxLevels()),
		zap.String("mode", string(mode)),
		zap.Uint64("start_block", b.Next()),
	)

	stats, err := b.BuildFromFiles(ctx.Context, ctx.String(eventsFileFlag.Name), ctx.String(keysFileFlag.Name))
	if err != nil {
		return fmt.Errorf("build failed after %d blocks: %w", stats.Blocks, err)
	}

	fmt.Fprintf(ctx.App.Writer, "indexed %d blocks (%d events), linked %d in %s\n",
		stats.Blocks, stats.Events, stats.Linked, stats.Elapsed)
	return nil
}
