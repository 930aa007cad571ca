package hostabci

// Response codes this adapter reports through CheckTx/ExecTxResult/Query.
// 0 is always abcitypes.CodeTypeOK; everything else is local to this
// application, not a CometBFT-defined code.
const (
	CodeDecodeError     uint32 = 1
	CodeBadSignature    uint32 = 2
	CodeAnteCheckFailed uint32 = 3
	CodeExecutionFailed uint32 = 4
	CodeNotFound        uint32 = 5
	CodeUnknownPath     uint32 = 6
)
