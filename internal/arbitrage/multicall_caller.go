package arbitrage

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ethereum/go-ethereum/common"
)

// multicall3Call3 mirrors the aggregate3 ABI's Call3 tuple field names so
// abi.Pack can match it by field name when packing the call array.
type multicall3Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Multicall3Caller implements AggregateCaller against a deployed Multicall3
// (or Multicall3-compatible) contract via the bound ContractClient.
type Multicall3Caller struct {
	client contractclient.ContractClient
}

// NewMulticall3Caller binds an AggregateCaller to client, which must already
// be bound to the aggregator's own address.
func NewMulticall3Caller(client contractclient.ContractClient) *Multicall3Caller {
	return &Multicall3Caller{client: client}
}

// Aggregate3 packs calls into the aggregate3(Call3[]) ABI call and unpacks
// the returned (bool,bytes)[] array. go-ethereum's abi.Unpack builds the
// tuple array's element type at runtime via reflect.StructOf, so the result
// is read back field-by-field through reflection rather than a static type
// assertion.
func (m *Multicall3Caller) Aggregate3(ctx context.Context, target common.Address, calls []Call3) ([]Call3Result, error) {
	packed := make([]multicall3Call3, len(calls))
	for i, c := range calls {
		packed[i] = multicall3Call3{Target: c.Target, AllowFailure: c.AllowFailure, CallData: c.CallData}
	}

	out, err := m.client.Call(nil, "aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("aggregate3 call failed: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("aggregate3 returned %d outputs, expected 1", len(out))
	}

	results, err := unpackCall3Results(out[0])
	if err != nil {
		return nil, fmt.Errorf("aggregate3 result decode: %w", err)
	}
	return results, nil
}

func unpackCall3Results(raw interface{}) ([]Call3Result, error) {
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("expected a slice of results, got %T", raw)
	}

	out := make([]Call3Result, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() != reflect.Struct {
			return nil, fmt.Errorf("result element %d is not a struct, got %s", i, elem.Kind())
		}
		successField := elem.FieldByName("Success")
		dataField := elem.FieldByName("ReturnData")
		if !successField.IsValid() || !dataField.IsValid() {
			return nil, fmt.Errorf("result element %d missing Success/ReturnData fields", i)
		}
		out[i] = Call3Result{
			Success:    successField.Bool(),
			ReturnData: dataField.Bytes(),
		}
	}
	return out, nil
}
