package types

import "github.com/ethereum/go-ethereum/common"

// TxType discriminates how a transaction should be gassed/signed when sent
// through ContractClient.Send. Standard covers the common EIP-1559 path;
// additional variants are reserved for future legacy/raw-gas submission
// modes.
type TxType int

const (
	Standard TxType = iota
)

// TxReceipt is the wire-level transaction receipt shape returned by
// TxListener.WaitForTransaction and read by ContractClient.ParseReceipt:
// numeric fields stay hex strings exactly as the JSON-RPC
// layer returns them, deferring big.Int parsing to call sites that need it
// (most callers only need GasUsed/EffectiveGasPrice/Status, so util.ExtractGasCost
// is the single conversion point).
type TxReceipt struct {
	TransactionHash   common.Hash
	BlockNumber       string
	GasUsed           string
	EffectiveGasPrice string
	Status            string // "0x1" success, "0x0" revert
	Logs              []ReceiptLog
}

// ReceiptLog is a single event log entry from a receipt.
type ReceiptLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}
