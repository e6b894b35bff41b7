// Package snapshot exports and restores the full ledger store.
//
// A snapshot is the sorted key-value content of the store framed with Borsh,
// followed by a blake3 checksum of that body, compressed with zstd.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"NftBridge/internal/borsh"
	"NftBridge/internal/ledger"
	"NftBridge/internal/storage"
)

// formatVersion is the current snapshot format version.
const formatVersion = 1

var (
	// ErrChecksum is returned when the body does not match its checksum.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrNotEmpty is returned when restoring into a store that already holds data.
	ErrNotEmpty = errors.New("restore target is not empty")
)

// Info summarizes a snapshot.
type Info struct {
	Version  uint32
	Entries  int
	Accounts int
	Checksum [32]byte
}

type entry struct {
	key   []byte
	value []byte
}

// Create snapshots the whole store and returns the compressed bytes.
func Create(db *storage.Storage) ([]byte, *Info, error) {
	entries, err := collect(db)
	if err != nil {
		return nil, nil, fmt.Errorf("collect entries:\n%w", err)
	}

	body := encodeBody(entries)
	checksum := blake3.Sum256(body)

	raw := append(body, checksum[:]...)

	compressed, err := compress(raw)
	if err != nil {
		return nil, nil, err
	}

	return compressed, summarize(entries, checksum), nil
}

// collect copies every key-value pair in key order.
func collect(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.Iterate(func(key, value []byte) error {
		// copy, the iterator reuses its buffers
		entries = append(entries, entry{
			key:   append([]byte(nil), key...),
			value: append([]byte(nil), value...),
		})
		return nil
	})

	return entries, err
}

func encodeBody(entries []entry) []byte {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	w := borsh.NewWriter(1024)
	w.U32(formatVersion).U64(uint64(len(entries)))

	for _, e := range entries {
		w.Bytes(e.key).Bytes(e.value)
	}

	return w.Finish()
}

func summarize(entries []entry, checksum [32]byte) *Info {
	info := &Info{Version: formatVersion, Entries: len(entries), Checksum: checksum}

	for _, e := range entries {
		if ledger.IsAccountKey(e.key) {
			info.Accounts++
		}
	}

	return info
}

// decode decompresses and verifies a snapshot.
func decode(data []byte) ([]entry, *Info, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress:\n%w", err)
	}

	if len(raw) < 32 {
		return nil, nil, fmt.Errorf("snapshot too short: %d bytes", len(raw))
	}

	body, sum := raw[:len(raw)-32], raw[len(raw)-32:]

	checksum := blake3.Sum256(body)
	if !bytes.Equal(checksum[:], sum) {
		return nil, nil, ErrChecksum
	}

	r := borsh.NewReader(body)

	version := r.U32()
	if r.Err() == nil && version != formatVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	count := r.U64()
	if r.Err() == nil && count > uint64(r.Remaining()/8) {
		return nil, nil, fmt.Errorf("entry count %d exceeds snapshot size", count)
	}

	entries := make([]entry, 0, count)
	for i := uint64(0); i < count && r.Err() == nil; i++ {
		entries = append(entries, entry{key: r.Bytes(), value: r.Bytes()})
	}

	if err := r.Finish(); err != nil {
		return nil, nil, fmt.Errorf("decode body:\n%w", err)
	}

	return entries, summarize(entries, checksum), nil
}

// Inspect verifies a snapshot without applying it.
func Inspect(data []byte) (*Info, error) {
	_, info, err := decode(data)
	return info, err
}

// Restore verifies a snapshot and writes it into an empty store in one batch.
func Restore(db *storage.Storage, data []byte) (*Info, error) {
	entries, info, err := decode(data)
	if err != nil {
		return nil, err
	}

	empty := true
	err = db.Iterate(func(key, value []byte) error {
		empty = false
		return errStop
	})
	if err != nil && err != errStop {
		return nil, err
	}

	if !empty {
		return nil, ErrNotEmpty
	}

	writes := make([]storage.Write, len(entries))
	for i, e := range entries {
		writes[i] = storage.Write{Key: e.key, Value: e.value}
	}

	if err := db.Apply(writes); err != nil {
		return nil, fmt.Errorf("write entries:\n%w", err)
	}

	return info, nil
}

var errStop = errors.New("stop")

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
