package arbitrage

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"

	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

// call3ResultStruct stands in for the anonymous struct type go-ethereum's
// abi.Unpack builds at runtime via reflect.StructOf for a tuple array
// return value; Aggregate3 reads it back by field name, not by static type,
// so a differently-named Go type exercises the same decode path.
type call3ResultStruct struct {
	Success    bool
	ReturnData []byte
}

type fakeAggregatorContractClient struct {
	callOut []interface{}
	callErr error
}

func (f *fakeAggregatorContractClient) ContractAddress() common.Address { return common.Address{} }
func (f *fakeAggregatorContractClient) Abi() abi.ABI                     { return abi.ABI{} }

func (f *fakeAggregatorContractClient) Call(_ *common.Address, _ string, _ ...interface{}) ([]interface{}, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callOut, nil
}

func (f *fakeAggregatorContractClient) Send(types.TxType, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("not implemented")
}
func (f *fakeAggregatorContractClient) TransactionData(common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeAggregatorContractClient) DecodeTransaction([]byte) (*contractclient.DecodedTransaction, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeAggregatorContractClient) ParseReceipt(*types.TxReceipt) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func TestMulticall3Caller_Aggregate3_DecodesReflectedResults(t *testing.T) {
	client := &fakeAggregatorContractClient{
		callOut: []interface{}{
			[]call3ResultStruct{
				{Success: true, ReturnData: []byte{0x01, 0x02}},
				{Success: false, ReturnData: nil},
			},
		},
	}
	caller := NewMulticall3Caller(client)

	results, err := caller.Aggregate3(context.Background(), common.HexToAddress("0xagg"), []Call3{
		{Target: common.HexToAddress("0xq1"), AllowFailure: true, CallData: []byte{0xaa}},
		{Target: common.HexToAddress("0xq2"), AllowFailure: true, CallData: []byte{0xbb}},
	})

	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, []byte{0x01, 0x02}, results[0].ReturnData)
	assert.False(t, results[1].Success)
}

func TestMulticall3Caller_Aggregate3_CallError(t *testing.T) {
	client := &fakeAggregatorContractClient{callErr: fmt.Errorf("rpc timeout")}
	caller := NewMulticall3Caller(client)

	_, err := caller.Aggregate3(context.Background(), common.HexToAddress("0xagg"), []Call3{})
	assert.Error(t, err)
}

func TestMulticall3Caller_Aggregate3_WrongOutputCount(t *testing.T) {
	client := &fakeAggregatorContractClient{callOut: []interface{}{1, 2}}
	caller := NewMulticall3Caller(client)

	_, err := caller.Aggregate3(context.Background(), common.HexToAddress("0xagg"), []Call3{})
	assert.Error(t, err)
}

func TestMulticall3Caller_Aggregate3_NotASlice(t *testing.T) {
	client := &fakeAggregatorContractClient{callOut: []interface{}{42}}
	caller := NewMulticall3Caller(client)

	_, err := caller.Aggregate3(context.Background(), common.HexToAddress("0xagg"), []Call3{})
	assert.Error(t, err)
}

func TestMulticall3Caller_Aggregate3_NonStructElements(t *testing.T) {
	client := &fakeAggregatorContractClient{callOut: []interface{}{[]int{1, 2, 3}}}
	caller := NewMulticall3Caller(client)

	_, err := caller.Aggregate3(context.Background(), common.HexToAddress("0xagg"), []Call3{})
	assert.Error(t, err)
}
