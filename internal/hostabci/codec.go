package hostabci

import (
	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/types"
)

// WireCodec decodes ABCI transaction bytes using the kernel's
// canonical wire format (internal/codec).
type WireCodec struct{}

func (WireCodec) Decode(raw []byte) (*types.ChainTransaction, error) {
	return codec.DecodeTransaction(raw)
}

var _ TxCodec = WireCodec{}
