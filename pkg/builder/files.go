package builder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/pkg/event"
)

const (
	// readBufferSize is the buffer of each input file reader
	readBufferSize = 1 << 20

	// maxPrealloc bounds slice capacity taken from untrusted counts
	maxPrealloc = 1024
)

// EventsReader streams an events file: a sequence of blocks, each encoded
// as blockId (int32 BE), numEvents (int32 BE), numEvents × (address, topic).
type EventsReader struct {
	r   *bufio.Reader
	buf [event.EncodedLength]byte
}

// NewEventsReader wraps r
func NewEventsReader(r io.Reader) *EventsReader {
	return &EventsReader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Next returns the next block, or io.EOF after the last one
func (er *EventsReader) Next() (uint64, []event.Event, error) {
	block, err := readInt32(er.r, true)
	if err != nil {
		return 0, nil, err
	}
	n, err := readInt32(er.r, false)
	if err != nil {
		return 0, nil, fmt.Errorf("block %d: %w", block, err)
	}

	events := make([]event.Event, 0, min(n, maxPrealloc))
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(er.r, er.buf[:]); err != nil {
			return 0, nil, fmt.Errorf("block %d event %d: %w", block, i, noEOF(err))
		}
		e, err := event.FromBytes(er.buf[:])
		if err != nil {
			return 0, nil, fmt.Errorf("block %d event %d: %w", block, i, err)
		}
		events = append(events, e)
	}
	return uint64(block), events, nil
}

// KeysReader streams a keys file: a sequence of blocks, each encoded as
// blockId, numAddresses, numTopics (int32 BE) followed by the addresses
// and then the topics.
type KeysReader struct {
	r *bufio.Reader
}

// NewKeysReader wraps r
func NewKeysReader(r io.Reader) *KeysReader {
	return &KeysReader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Next returns the next block, or io.EOF after the last one
func (kr *KeysReader) Next() (uint64, *Keys, error) {
	block, err := readInt32(kr.r, true)
	if err != nil {
		return 0, nil, err
	}
	numAddresses, err := readInt32(kr.r, false)
	if err != nil {
		return 0, nil, fmt.Errorf("block %d: %w", block, err)
	}
	numTopics, err := readInt32(kr.r, false)
	if err != nil {
		return 0, nil, fmt.Errorf("block %d: %w", block, err)
	}

	keys := &Keys{
		Addresses: make([]common.Address, 0, min(numAddresses, maxPrealloc)),
		Topics:    make([]common.Hash, 0, min(numTopics, maxPrealloc)),
	}
	for i := uint32(0); i < numAddresses; i++ {
		var a common.Address
		if _, err := io.ReadFull(kr.r, a[:]); err != nil {
			return 0, nil, fmt.Errorf("block %d address %d: %w", block, i, noEOF(err))
		}
		keys.Addresses = append(keys.Addresses, a)
	}
	for i := uint32(0); i < numTopics; i++ {
		var t common.Hash
		if _, err := io.ReadFull(kr.r, t[:]); err != nil {
			return 0, nil, fmt.Errorf("block %d topic %d: %w", block, i, noEOF(err))
		}
		keys.Topics = append(keys.Topics, t)
	}
	return uint64(block), keys, nil
}

// readInt32 reads a big-endian int32. A clean EOF before the first byte is
// reported as io.EOF only when atStart is set.
func readInt32(r io.Reader, atStart bool) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if atStart && errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, noEOF(err)
	}
	v := int32(binary.BigEndian.Uint32(b[:]))
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return uint32(v), nil
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// BuildFromFiles appends every block of the events file, and of the keys
// file when keysPath is set, then links the ladders.
func (b *Builder) BuildFromFiles(ctx context.Context, eventsPath, keysPath string) (Stats, error) {
	start := time.Now()
	before := b.stats

	ef, err := os.Open(eventsPath)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open events file: %w", err)
	}
	defer ef.Close()
	events := NewEventsReader(ef)

	var keys *KeysReader
	if keysPath != "" {
		kf, err := os.Open(keysPath)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to open keys file: %w", err)
		}
		defer kf.Close()
		keys = NewKeysReader(kf)
	}

	for {
		if err := ctx.Err(); err != nil {
			return b.delta(before, start), err
		}

		block, evs, err := events.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.delta(before, start), fmt.Errorf("failed to read events file: %w", err)
		}

		var ks *Keys
		if keys != nil {
			keyBlock, k, err := keys.Next()
			if errors.Is(err, io.EOF) {
				return b.delta(before, start), fmt.Errorf("%w: keys file ends before block %d", ErrBlockMismatch, block)
			}
			if err != nil {
				return b.delta(before, start), fmt.Errorf("failed to read keys file: %w", err)
			}
			if keyBlock != block {
				return b.delta(before, start), fmt.Errorf("%w: events file has block %d, keys file has block %d", ErrBlockMismatch, block, keyBlock)
			}
			ks = k
		}

		if err := b.AddBlock(ctx, block, ks, evs); err != nil {
			return b.delta(before, start), err
		}
		if b.stats.Blocks%100000 == 0 {
			b.logger.Info("build progress", zap.Uint64("blocks", b.stats.Blocks))
		}
	}

	if keys != nil {
		if _, _, err := keys.Next(); !errors.Is(err, io.EOF) {
			return b.delta(before, start), fmt.Errorf("%w: keys file has blocks past the events file", ErrBlockMismatch)
		}
	}

	if err := b.Finalize(ctx); err != nil {
		return b.delta(before, start), err
	}

	stats := b.delta(before, start)
	b.logger.Info("build finished",
		zap.Uint64("blocks", stats.Blocks),
		zap.Uint64("events", stats.Events),
		zap.Duration("elapsed", stats.Elapsed),
		zap.Duration("linkTime", stats.LinkTime),
	)
	return stats, nil
}

// delta returns the stats accumulated since before
func (b *Builder) delta(before Stats, start time.Time) Stats {
	return Stats{
		Blocks:   b.stats.Blocks - before.Blocks,
		Events:   b.stats.Events - before.Events,
		Linked:   b.stats.Linked - before.Linked,
		Elapsed:  time.Since(start),
		LinkTime: b.stats.LinkTime - before.LinkTime,
	}
}

// WriteEventsFile encodes blocks in the events file format
func WriteEventsFile(w io.Writer, blocks [][]event.Event) error {
	bw := bufio.NewWriter(w)
	var hdr [8]byte
	for i, evs := range blocks {
		binary.BigEndian.PutUint32(hdr[:4], uint32(i))
		binary.BigEndian.PutUint32(hdr[4:], uint32(len(evs)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		for _, e := range evs {
			if _, err := bw.Write(e.Bytes()); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteKeysFile encodes per-block keys in the keys file format
func WriteKeysFile(w io.Writer, keys []Keys) error {
	bw := bufio.NewWriter(w)
	var hdr [12]byte
	for i, k := range keys {
		binary.BigEndian.PutUint32(hdr[:4], uint32(i))
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(k.Addresses)))
		binary.BigEndian.PutUint32(hdr[8:], uint32(len(k.Topics)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		for _, a := range k.Addresses {
			if _, err := bw.Write(a.Bytes()); err != nil {
				return err
			}
		}
		for _, t := range k.Topics {
			if _, err := bw.Write(t.Bytes()); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
