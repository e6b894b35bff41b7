package runtime

import (
	"crypto/ed25519"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"NftBridge/internal/derive"
	"NftBridge/internal/errs"
	"NftBridge/internal/types"
)

const (
	// hashSize is the expected size of a request hash.
	hashSize = 32

	// keySize is the expected size of an Ed25519 public key.
	keySize = ed25519.PublicKeySize

	// signatureSize is the expected size of an Ed25519 signature.
	signatureSize = ed25519.SignatureSize

	// MaxCosigners bounds the additional signers of one request.
	MaxCosigners = 8

	// MaxArgsSize bounds the Borsh argument payload.
	MaxArgsSize = 64 << 10

	// MaxFunctionName bounds the function name length.
	MaxFunctionName = 64
)

// Request is a decoded, verified request envelope.
type Request struct {
	Hash      [32]byte
	Sender    derive.Address
	Cosigners []derive.Address
	Program   derive.Address
	Function  string
	Args      []byte
	Nonce     uint64
}

// Signers returns the sender followed by the cosigners.
func (r *Request) Signers() []derive.Address {
	return append([]derive.Address{r.Sender}, r.Cosigners...)
}

// BuildRequest builds a signed request envelope. The sender and every
// cosigner sign the request hash. Returns the serialized bytes and the hash.
func BuildRequest(
	program derive.Address,
	function string,
	args []byte,
	nonce uint64,
	sender ed25519.PrivateKey,
	cosigners ...ed25519.PrivateKey,
) ([]byte, [32]byte) {
	senderPub := sender.Public().(ed25519.PublicKey)

	var cosignerKeys []byte
	for _, c := range cosigners {
		cosignerKeys = append(cosignerKeys, c.Public().(ed25519.PublicKey)...)
	}

	unsigned := buildUnsignedBytes(senderPub, cosignerKeys, program[:], function, args, nonce)
	hash := blake3.Sum256(unsigned)

	sig := ed25519.Sign(sender, hash[:])

	var cosigs []byte
	for _, c := range cosigners {
		cosigs = append(cosigs, ed25519.Sign(c, hash[:])...)
	}

	builder := flatbuffers.NewBuilder(256 + len(args))

	hashVec := builder.CreateByteVector(hash[:])
	senderVec := builder.CreateByteVector(senderPub)
	sigVec := builder.CreateByteVector(sig)
	cosignersVec := builder.CreateByteVector(cosignerKeys)
	cosigsVec := builder.CreateByteVector(cosigs)
	programVec := builder.CreateByteVector(program[:])
	fnOff := builder.CreateString(function)
	argsVec := builder.CreateByteVector(args)

	types.RequestStart(builder)
	types.RequestAddHash(builder, hashVec)
	types.RequestAddSender(builder, senderVec)
	types.RequestAddSignature(builder, sigVec)
	types.RequestAddCosigners(builder, cosignersVec)
	types.RequestAddCosignatures(builder, cosigsVec)
	types.RequestAddProgram(builder, programVec)
	types.RequestAddFunctionName(builder, fnOff)
	types.RequestAddArgs(builder, argsVec)
	types.RequestAddNonce(builder, nonce)
	off := types.RequestEnd(builder)

	builder.Finish(off)

	return builder.FinishedBytes(), hash
}

// buildUnsignedBytes serializes the hashed part of a request.
// Must match between BuildRequest and ParseRequest.
func buildUnsignedBytes(sender, cosigners, program []byte, function string, args []byte, nonce uint64) []byte {
	builder := flatbuffers.NewBuilder(256 + len(args))

	senderVec := builder.CreateByteVector(sender)
	cosignersVec := builder.CreateByteVector(cosigners)
	programVec := builder.CreateByteVector(program)
	fnOff := builder.CreateString(function)
	argsVec := builder.CreateByteVector(args)

	types.RequestStart(builder)
	types.RequestAddSender(builder, senderVec)
	types.RequestAddCosigners(builder, cosignersVec)
	types.RequestAddProgram(builder, programVec)
	types.RequestAddFunctionName(builder, fnOff)
	types.RequestAddArgs(builder, argsVec)
	types.RequestAddNonce(builder, nonce)
	off := types.RequestEnd(builder)

	builder.Finish(off)

	return builder.FinishedBytes()
}

// ParseRequest decodes a request and checks its structure, hash and signatures.
func ParseRequest(data []byte) (req *Request, err error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			req, err = nil, errs.Malformed("malformed request data")
		}
	}()

	if len(data) < 8 {
		return nil, errs.Malformed("request data too short")
	}

	fb := types.GetRootAsRequest(data, 0)

	if err := validateFieldSizes(fb); err != nil {
		return nil, err
	}

	unsigned := buildUnsignedBytes(fb.SenderBytes(), fb.CosignersBytes(), fb.ProgramBytes(),
		string(fb.FunctionName()), fb.ArgsBytes(), fb.Nonce())
	expected := blake3.Sum256(unsigned)

	var hash [32]byte
	copy(hash[:], fb.HashBytes())

	if hash != expected {
		return nil, errs.Malformed("hash mismatch")
	}

	if !ed25519.Verify(fb.SenderBytes(), hash[:], fb.SignatureBytes()) {
		return nil, errs.Malformed("invalid sender signature")
	}

	req = &Request{
		Hash:     hash,
		Function: string(fb.FunctionName()),
		Args:     append([]byte(nil), fb.ArgsBytes()...),
		Nonce:    fb.Nonce(),
	}
	copy(req.Sender[:], fb.SenderBytes())
	copy(req.Program[:], fb.ProgramBytes())

	keys := fb.CosignersBytes()
	sigs := fb.CosignaturesBytes()
	seen := map[derive.Address]bool{req.Sender: true}

	for i := 0; i < len(keys)/keySize; i++ {
		key := keys[i*keySize : (i+1)*keySize]
		sig := sigs[i*signatureSize : (i+1)*signatureSize]

		if !ed25519.Verify(key, hash[:], sig) {
			return nil, errs.Malformed("invalid cosignature %d", i)
		}

		var addr derive.Address
		copy(addr[:], key)

		if seen[addr] {
			return nil, errs.Malformed("duplicate signer %s", addr.Short())
		}
		seen[addr] = true

		req.Cosigners = append(req.Cosigners, addr)
	}

	return req, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(fb *types.Request) error {
	if len(fb.HashBytes()) != hashSize {
		return errs.Malformed("invalid hash size: got %d, want %d", len(fb.HashBytes()), hashSize)
	}

	if len(fb.SenderBytes()) != keySize {
		return errs.Malformed("invalid sender size: got %d, want %d", len(fb.SenderBytes()), keySize)
	}

	if len(fb.SignatureBytes()) != signatureSize {
		return errs.Malformed("invalid signature size: got %d, want %d", len(fb.SignatureBytes()), signatureSize)
	}

	if len(fb.ProgramBytes()) != derive.AddressSize {
		return errs.Malformed("invalid program size: got %d, want %d", len(fb.ProgramBytes()), derive.AddressSize)
	}

	name := fb.FunctionName()
	if len(name) == 0 || len(name) > MaxFunctionName {
		return errs.Malformed("invalid function name length %d", len(name))
	}

	if len(fb.ArgsBytes()) > MaxArgsSize {
		return errs.Malformed("args too large: %d bytes", len(fb.ArgsBytes()))
	}

	keys := len(fb.CosignersBytes())
	if keys%keySize != 0 {
		return errs.Malformed("cosigners length %d is not a multiple of %d", keys, keySize)
	}

	n := keys / keySize
	if n > MaxCosigners {
		return errs.Malformed("too many cosigners: %d (max %d)", n, MaxCosigners)
	}

	if len(fb.CosignaturesBytes()) != n*signatureSize {
		return errs.Malformed("cosignatures length %d, want %d", len(fb.CosignaturesBytes()), n*signatureSize)
	}

	return nil
}

// String describes the request for logs.
func (r *Request) String() string {
	return fmt.Sprintf("%s.%s from %s", r.Program.Short(), r.Function, r.Sender.Short())
}
