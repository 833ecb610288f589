// Package contractclient wraps a single deployed contract (address + ABI)
// behind a small Call/Send/decode surface, so the rest of the engine never
// touches go-ethereum's abi.ABI or bind.BoundContract directly.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ContractClient is the narrow surface the engine needs against a single
// deployed contract: read via Call, write via Send, and decode arbitrary
// calldata/receipts belonging to that contract's ABI.
type ContractClient interface {
	ContractAddress() common.Address
	Abi() abi.ABI
	Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Send(txType types.TxType, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	TransactionData(txHash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (*DecodedTransaction, error)
	ParseReceipt(receipt *types.TxReceipt) (string, error)
}

// DecodedTransaction is the JSON-friendly result of decoding a contract
// call's input data against this client's ABI.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Parameter  map[string]interface{} `json:"parameter"`
}

// EVMClient is the subset of ethclient.Client this package calls.
type EVMClient interface {
	bind.ContractBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

type ethContractClient struct {
	client  EVMClient
	address common.Address
	abi     abi.ABI
}

// NewContractClient builds a ContractClient bound to a single deployed
// contract.
func NewContractClient(client EVMClient, address common.Address, contractABI abi.ABI) ContractClient {
	return &ethContractClient{client: client, address: address, abi: contractABI}
}

func (c *ethContractClient) ContractAddress() common.Address { return c.address }
func (c *ethContractClient) Abi() abi.ABI                     { return c.abi }

// Call performs an eth_call against this contract and unpacks the result
// into Go values matching the ABI's declared output types.
func (c *ethContractClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: data}
	if from != nil {
		msg.From = *from
	}

	out, err := c.client.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call failed for %s: %w", method, err)
	}

	results, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result of %s: %w", method, err)
	}
	return results, nil
}

// Send builds, signs and broadcasts a transaction calling method on this
// contract. gasLimit of nil triggers automatic gas estimation.
func (c *ethContractClient) Send(txType types.TxType, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	if pk == nil {
		return common.Hash{}, fmt.Errorf("no private key configured; node is in observe-only mode")
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx := context.Background()
	nonce, err := c.client.PendingNonceAt(ctx, *from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasTipCap, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas tip cap: %w", err)
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch head header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	gasFeeCap := new(big.Int).Add(baseFee, new(big.Int).Mul(gasTipCap, big.NewInt(2)))

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		estimated, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: *from, To: &c.address, Data: data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
		}
		limit = estimated
	}

	chainID, err := c.client.NetworkID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       limit,
		To:        &c.address,
		Data:      data,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign %s: %w", method, err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast %s: %w", method, err)
	}
	return signed.Hash(), nil
}

// TransactionData fetches the raw input calldata for an already-broadcast
// transaction.
func (c *ethContractClient) TransactionData(txHash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(context.Background(), txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes calldata against this client's ABI, returning
// the matched method name and its named parameters.
func (c *ethContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("unrecognized selector %x: %w", data[:4], err)
	}

	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to unpack %s arguments: %w", method.Name, err)
	}

	return &DecodedTransaction{MethodName: method.Name, Parameter: args}, nil
}

// ParseReceipt decodes every log in receipt that matches this client's ABI
// event set and returns the result as a JSON array of
// {EventName, Parameter} objects, matching the wire shape the teacher's
// NFT-mint-ID extraction expects.
func (c *ethContractClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	type parsedEvent struct {
		EventName string                 `json:"EventName"`
		Parameter map[string]interface{} `json:"Parameter"`
	}
	var events []parsedEvent

	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		event, err := c.abi.EventByID(l.Topics[0])
		if err != nil {
			continue // not one of ours
		}
		params := make(map[string]interface{})
		if len(l.Data) > 0 {
			if err := event.Inputs.UnpackIntoMap(params, l.Data); err != nil {
				continue
			}
		}
		events = append(events, parsedEvent{EventName: event.Name, Parameter: params})
	}

	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parsed events: %w", err)
	}
	return string(out), nil
}
