package runtime

import (
	"encoding/binary"
	"fmt"

	"NftBridge/internal/borsh"
	"NftBridge/internal/derive"
	"NftBridge/internal/storage"
)

// Storage keys outside the account keyspace. Accounts use raw 32-byte keys.
var (
	receiptPrefix = []byte("x:")
	heightKey     = []byte("height")
)

// Receipt is the persisted outcome of an executed request.
type Receipt struct {
	Hash     [32]byte
	Height   uint64 // Height is the position of the request in execution order
	Program  derive.Address
	Function string
	Sender   derive.Address
	Success  bool
	Kind     string // Kind is the error kind name of a failed request
	Error    string
	Logs     []string
}

func (r *Receipt) MarshalBorsh(w *borsh.Writer) {
	w.Fixed32(r.Hash).U64(r.Height).Fixed32(r.Program).String(r.Function).Fixed32(r.Sender)
	w.Bool(r.Success).String(r.Kind).String(r.Error)

	w.U32(uint32(len(r.Logs)))
	for _, l := range r.Logs {
		w.String(l)
	}
}

func (r *Receipt) UnmarshalBorsh(rd *borsh.Reader) {
	r.Hash = rd.Fixed32()
	r.Height = rd.U64()
	r.Program = rd.Fixed32()
	r.Function = rd.String()
	r.Sender = rd.Fixed32()
	r.Success = rd.Bool()
	r.Kind = rd.String()
	r.Error = rd.String()

	n := rd.U32()
	for i := uint32(0); i < n && rd.Err() == nil; i++ {
		r.Logs = append(r.Logs, rd.String())
	}
}

func receiptKey(hash [32]byte) []byte {
	key := make([]byte, 0, len(receiptPrefix)+len(hash))
	key = append(key, receiptPrefix...)
	return append(key, hash[:]...)
}

// receiptWrites returns the batch entries persisting r and the new height.
func receiptWrites(r *Receipt) []storage.Write {
	var h [8]byte
	binary.LittleEndian.PutUint64(h[:], r.Height)

	return []storage.Write{
		{Key: receiptKey(r.Hash), Value: borsh.Marshal(r)},
		{Key: heightKey, Value: h[:]},
	}
}

func loadHeight(db *storage.Storage) (uint64, error) {
	data, err := db.Get(heightKey)
	if err != nil {
		return 0, fmt.Errorf("read height:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt height: %d bytes", len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}
