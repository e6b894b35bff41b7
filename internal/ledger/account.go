package ledger

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"NftBridge/internal/derive"
	"NftBridge/internal/types"
)

// Kind identifies the payload layout of an account.
type Kind uint8

const (
	// KindSystem is a bare account holding only a native balance.
	KindSystem Kind = iota

	// KindAsset is an asset definition (supply, decimals, authorities).
	KindAsset

	// KindHolding holds units of one asset for one owner.
	KindHolding

	// KindMetadata is the descriptive metadata of an asset.
	KindMetadata

	// KindEdition is the master edition of a unit-supply asset.
	KindEdition

	// KindRecord is program-owned opaque data.
	KindRecord
)

// String returns a readable kind name.
func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindAsset:
		return "asset"
	case KindHolding:
		return "holding"
	case KindMetadata:
		return "metadata"
	case KindEdition:
		return "edition"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Account is the decoded ledger envelope stored under its 32-byte address.
type Account struct {
	Address derive.Address // Address is the account key
	Owner   derive.Address // Owner is the program allowed to modify Data
	Kind    Kind           // Kind selects the Data layout
	Balance uint64         // Balance is the native balance
	Version uint64         // Version increments once per committed request that touches the account
	Data    []byte         // Data is the Borsh-encoded payload
}

// clone returns a deep copy so overlay entries are never aliased by callers.
func (a *Account) clone() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// encodeAccount serializes an account into a FlatBuffers Account table.
func encodeAccount(a *Account) []byte {
	builder := flatbuffers.NewBuilder(128 + len(a.Data))

	addrVec := builder.CreateByteVector(a.Address[:])
	ownerVec := builder.CreateByteVector(a.Owner[:])
	dataVec := builder.CreateByteVector(a.Data)

	types.AccountStart(builder)
	types.AccountAddAddress(builder, addrVec)
	types.AccountAddOwner(builder, ownerVec)
	types.AccountAddKind(builder, byte(a.Kind))
	types.AccountAddBalance(builder, a.Balance)
	types.AccountAddVersion(builder, a.Version)
	types.AccountAddData(builder, dataVec)
	offset := types.AccountEnd(builder)

	builder.Finish(offset)

	return builder.FinishedBytes()
}

// DecodeAccount parses a stored FlatBuffers Account.
func DecodeAccount(data []byte) (acc *Account, err error) {
	// FlatBuffers panics on malformed data
	defer func() {
		if r := recover(); r != nil {
			acc, err = nil, fmt.Errorf("malformed account data")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}

	t := types.GetRootAsAccount(data, 0)

	addr, err := derive.AddressFromBytes(t.AddressBytes())
	if err != nil {
		return nil, fmt.Errorf("account address:\n%w", err)
	}

	owner, err := derive.AddressFromBytes(t.OwnerBytes())
	if err != nil {
		return nil, fmt.Errorf("account owner:\n%w", err)
	}

	return &Account{
		Address: addr,
		Owner:   owner,
		Kind:    Kind(t.Kind()),
		Balance: t.Balance(),
		Version: t.Version(),
		Data:    append([]byte(nil), t.DataBytes()...),
	}, nil
}
