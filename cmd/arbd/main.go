package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ChoSanghyuk/dexarb/configs"
	"github.com/ChoSanghyuk/dexarb/internal/arbitrage"
	"github.com/ChoSanghyuk/dexarb/internal/db"
	"github.com/ChoSanghyuk/dexarb/internal/filters"
	"github.com/ChoSanghyuk/dexarb/internal/mempool"
	"github.com/ChoSanghyuk/dexarb/internal/metrics"
	"github.com/ChoSanghyuk/dexarb/internal/pool"
	"github.com/ChoSanghyuk/dexarb/pkg/contractclient"
	"github.com/ChoSanghyuk/dexarb/pkg/txlistener"
	"github.com/ChoSanghyuk/dexarb/pkg/types"
	"github.com/ChoSanghyuk/dexarb/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

func main() {
	encryptedPk := os.Getenv("ENC_PK")
	if encryptedPk == "" {
		panic("ENC_PK not set")
	}
	key := os.Getenv("KEY")
	if key == "" {
		panic("KEY not set")
	}
	pkHex, err := util.Decrypt([]byte(key), encryptedPk)
	if err != nil {
		panic(err)
	}
	pk, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		panic(err)
	}
	myAddr := crypto.PubkeyToAddress(pk.PublicKey)

	conf, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		panic(err)
	}

	client, err := ethclient.Dial(conf.RPC)
	if err != nil {
		panic(err)
	}

	contractClients, err := buildContractClients(client, conf.ContractClient)
	if err != nil {
		panic(err)
	}

	store := pool.NewStore()
	v2Pools, v3Pools := buildPoolConfigs(conf.Pairs)

	v2Syncer := pool.NewV2Syncer(store, v2Pools, clientsForPools(contractClients, v2Pools), contractClients)
	v3Syncer := pool.NewV3Syncer(store, v3Pools, clientsForV3Pools(contractClients, v3Pools), contractClients)

	var filter *filters.Filter
	if conf.WhitelistPath != "" {
		filter, err = filters.Load(conf.WhitelistPath)
		if err != nil {
			log.Printf("failed to load whitelist at %s, falling back to advisory defaults: %v", conf.WhitelistPath, err)
			filter = filters.Default()
		}
	} else {
		filter = filters.Default()
	}

	quoteTokens := map[common.Address]bool{}
	for _, t := range conf.QuoteTokens {
		quoteTokens[common.HexToAddress(t)] = true
	}

	detector := arbitrage.NewDetector(store, filter, conf.ToDetectorConfig(quoteTokens))
	cooldown := arbitrage.NewCooldownStore(conf.ToCooldownConfig())

	routers := arbitrage.RouterMap{}
	for dexName, addr := range conf.ExecutorYAMLData.Routers {
		routers[resolveDexVariant(dexName)] = common.HexToAddress(addr)
	}

	var executorClient contractclient.ContractClient
	if conf.ExecutorYAMLData.ExecutorAddress != "" {
		executorClient = contractClients[common.HexToAddress(conf.ExecutorYAMLData.ExecutorAddress)]
	}

	listener := txlistener.NewTxListener(client, txlistener.WithPollInterval(3*time.Second), txlistener.WithTimeout(5*time.Minute))
	executor := arbitrage.NewExecutor(conf.ToExecutorConfig(routers), executorClient, v2RouterClients(contractClients, routers), listener, myAddr, pk, cooldown)

	preScreener := buildPreScreener(conf.PreScreenYAMLData, contractClients)

	recorder, err := db.NewMySQLRecorder(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local", "root", "root", "127.0.0.1", "3306", "dexarb"))
	if err != nil {
		panic(err)
	}
	defer recorder.Close()

	snapshotWriter := pool.NewSnapshotWriter(store, "state/pools.json", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSyncLoop(ctx, store, v2Syncer, v3Syncer, client, snapshotWriter)
	go runDetectionLoop(ctx, cancel, store, detector, preScreener, executor, cooldown, recorder, conf.Pairs)

	if rpcClient, err := gethrpc.DialContext(ctx, conf.RPC); err != nil {
		log.Printf("mempool: failed to dial raw RPC, pending-tx monitoring disabled: %v", err)
	} else {
		source := &rpcTxSource{eth: client, rpc: rpcClient}
		startMempoolMonitor(ctx, client, source, store, buildPairLookup(store, pairSymbols(conf.Pairs)), buildRouterEntries(routers), recorder)
	}

	log.Printf("arbd running as %s", myAddr.Hex())
	<-ctx.Done()
}

// runSyncLoop ticks the V2/V3 sync engines every 3 seconds and periodically
// snapshots the store (spec §4.2/§4.3/§4.4).
func runSyncLoop(ctx context.Context, store *pool.Store, v2 *pool.V2Syncer, v3 *pool.V3Syncer, client *ethclient.Client, snap *pool.SnapshotWriter) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	var lastSnapshot time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			block, err := client.BlockNumber(ctx)
			if err != nil {
				log.Printf("sync: failed to fetch block number: %v", err)
				continue
			}
			if err := v2.SyncAll(ctx, block); err != nil {
				log.Printf("sync: v2 sync error: %v", err)
			}
			if err := v3.SyncAll(ctx, block); err != nil {
				log.Printf("sync: v3 sync error: %v", err)
			}
			stats := store.CombinedStats()
			metrics.ObservePoolStoreStats(stats.V2Count, stats.V3Count)

			if time.Since(lastSnapshot) > 30*time.Second {
				if err := snap.Write(block); err != nil {
					log.Printf("sync: snapshot write failed: %v", err)
				}
				lastSnapshot = time.Now()
			}
		}
	}
}

// runDetectionLoop scans every configured pair each tick, runs the batch
// quoter pre-screen over the candidates, pushes the survivors through the
// executor, and persists the outcome (spec §4.6/§4.7/§4.9). A result
// wrapping ErrCapitalCommitted or ErrAmbiguousOutcome halts the whole
// program via cancel rather than continuing to the next route, since the
// position's true state needs manual intervention (spec §4.9 step 6).
func runDetectionLoop(ctx context.Context, halt context.CancelFunc, store *pool.Store, detector *arbitrage.Detector, preScreener *arbitrage.PreScreener, executor *arbitrage.Executor, cooldown *arbitrage.CooldownStore, recorder *db.MySQLRecorder, pairs []configs.PairYAMLData) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := store.CombinedStats()
			block := stats.MaxBlock
			cooldown.Cleanup(block)

			for _, pair := range pairs {
				opportunities := detector.Scan(pair.Symbol, block)
				if len(opportunities) == 0 {
					continue
				}
				for _, opp := range opportunities {
					metrics.OpportunitiesFound.WithLabelValues(opp.Pair).Inc()
					if err := recorder.RecordOpportunity(opp, time.Now()); err != nil {
						log.Printf("detect: failed to record opportunity: %v", err)
					}
				}

				verified := screenOpportunities(ctx, preScreener, opportunities)
				metrics.PreScreenBatchSize.Observe(float64(len(opportunities)))

				for _, v := range verified {
					if !v.BothLegsValid && !v.IsPassthrough {
						log.Printf("detect: %s/%s->%s failed pre-screen: %s", v.Pair, v.BuyDex, v.SellDex, v.Error)
						continue
					}
					metrics.OpportunitiesPassedScreen.WithLabelValues(v.Pair).Inc()

					result := executor.Execute(ctx, v, block)

					txHash := ""
					if result.TxHash != nil {
						txHash = result.TxHash.Hex()
					}
					mode := "legacy"
					if executor.IsAtomic() {
						mode = "atomic"
					}
					outcome := "failure"
					if result.Success {
						outcome = "success"
						metrics.TradeProfitUSD.Observe(result.ProfitUSD)
					}
					metrics.TradesExecuted.WithLabelValues(mode, outcome).Inc()
					if err := recorder.RecordTrade(v.Pair, v.BuyDex.String(), v.SellDex.String(), mode, result.Success, txHash, result.ProfitUSD, result.GasCostUSD, result.Error); err != nil {
						log.Printf("detect: failed to record trade: %v", err)
					}

					if errors.Is(result.Error, arbitrage.ErrCapitalCommitted) || errors.Is(result.Error, arbitrage.ErrAmbiguousOutcome) {
						log.Printf("detect: HALTING -- %s/%s->%s left capital in an uncertain state: %v", v.Pair, v.BuyDex, v.SellDex, result.Error)
						halt()
						return
					}
					if result.Error != nil {
						fmt.Printf("route %s/%s->%s failed: %v\n", v.Pair, v.BuyDex, v.SellDex, result.Error)
						continue
					}
					fmt.Printf("✓ executed %s: %s -> %s, profit $%.2f\n", v.Pair, v.BuyDex, v.SellDex, result.ProfitUSD)
				}
			}
		}
	}
}

// screenOpportunities runs the batch quoter pre-screen when configured,
// otherwise passes every candidate through as both-legs-valid (spec §4.7's
// SKIP_MULTICALL_PRESCREEN path).
func screenOpportunities(ctx context.Context, preScreener *arbitrage.PreScreener, opportunities []types.ArbitrageOpportunity) []types.VerifiedOpportunity {
	if preScreener == nil {
		out := make([]types.VerifiedOpportunity, 0, len(opportunities))
		for _, opp := range opportunities {
			out = append(out, types.VerifiedOpportunity{ArbitrageOpportunity: opp, BothLegsValid: true})
		}
		return out
	}
	verified, err := preScreener.Screen(ctx, opportunities)
	if err != nil {
		log.Printf("detect: pre-screen failed, treating candidates as unscreened: %v", err)
		out := make([]types.VerifiedOpportunity, 0, len(opportunities))
		for _, opp := range opportunities {
			out = append(out, types.VerifiedOpportunity{ArbitrageOpportunity: opp, IsPassthrough: true})
		}
		return out
	}
	return verified
}

func buildContractClients(client contractclient.EVMClient, cfgs map[string]configs.ContractClientYAMLData) (map[common.Address]contractclient.ContractClient, error) {
	out := make(map[common.Address]contractclient.ContractClient, len(cfgs))
	for name, data := range cfgs {
		contractABI, err := util.LoadABI(data.ABI)
		if err != nil {
			return nil, fmt.Errorf("failed to load ABI for %s: %w", name, err)
		}
		addr := common.HexToAddress(data.Address)
		out[addr] = contractclient.NewContractClient(client, addr, contractABI)
	}
	return out, nil
}

func buildPoolConfigs(pairs []configs.PairYAMLData) ([]pool.V2PoolConfig, []pool.V3PoolConfig) {
	var v2s []pool.V2PoolConfig
	var v3s []pool.V3PoolConfig
	for _, pair := range pairs {
		for _, p := range pair.V2 {
			v2s = append(v2s, pool.V2PoolConfig{Address: common.HexToAddress(p.Address), Dex: resolveDexVariant(p.Dex), PairSymbol: pair.Symbol})
		}
		for _, p := range pair.V3 {
			v3s = append(v3s, pool.V3PoolConfig{Address: common.HexToAddress(p.Address), Dex: resolveDexVariant(p.Dex), PairSymbol: pair.Symbol})
		}
	}
	return v2s, v3s
}

func clientsForPools(all map[common.Address]contractclient.ContractClient, pools []pool.V2PoolConfig) map[common.Address]contractclient.ContractClient {
	out := make(map[common.Address]contractclient.ContractClient, len(pools))
	for _, p := range pools {
		if c, ok := all[p.Address]; ok {
			out[p.Address] = c
		}
	}
	return out
}

func clientsForV3Pools(all map[common.Address]contractclient.ContractClient, pools []pool.V3PoolConfig) map[common.Address]contractclient.ContractClient {
	out := make(map[common.Address]contractclient.ContractClient, len(pools))
	for _, p := range pools {
		if c, ok := all[p.Address]; ok {
			out[p.Address] = c
		}
	}
	return out
}

func v2RouterClients(all map[common.Address]contractclient.ContractClient, routers arbitrage.RouterMap) map[types.DexVariant]contractclient.ContractClient {
	out := make(map[types.DexVariant]contractclient.ContractClient, len(routers))
	for dex, addr := range routers {
		if c, ok := all[addr]; ok {
			out[dex] = c
		}
	}
	return out
}

// resolveDexVariant maps a YAML dex name (matching types.DexVariant's own
// String() output, e.g. "UniswapV3_030") back to the enum value.
func resolveDexVariant(name string) types.DexVariant {
	for _, v := range []types.DexVariant{
		types.QuickswapV2, types.SushiswapV2, types.ApeswapV2, types.GenericV2,
		types.UniswapV3Fee100, types.UniswapV3Fee500, types.UniswapV3Fee3000, types.UniswapV3Fee10000,
		types.SushiV3Fee100, types.SushiV3Fee500, types.SushiV3Fee3000,
		types.QuickswapV3,
	} {
		if v.String() == name {
			return v
		}
	}
	return types.Unknown
}

// buildPreScreener resolves the configured aggregator and per-DEX quoter
// addresses into an arbitrage.PreScreener. It returns nil when the
// aggregator is unconfigured or the operator set prescreen.skip, in which
// case runDetectionLoop falls back to unscreened passthrough (spec §4.7's
// SKIP_MULTICALL_PRESCREEN).
func buildPreScreener(conf configs.PreScreenYAMLData, contractClients map[common.Address]contractclient.ContractClient) *arbitrage.PreScreener {
	if conf.Skip || conf.AggregatorAddress == "" {
		return nil
	}
	aggregatorAddr := common.HexToAddress(conf.AggregatorAddress)
	aggregatorClient, ok := contractClients[aggregatorAddr]
	if !ok {
		log.Printf("prescreen: no contract client bound to aggregator %s, disabling pre-screen", conf.AggregatorAddress)
		return nil
	}

	quoters := make(map[types.DexVariant]arbitrage.DexQuoterConfig, len(conf.Quoters))
	for dexName, q := range conf.Quoters {
		dialect := arbitrage.QuoterV1
		if q.Dialect == "v2" {
			dialect = arbitrage.QuoterV2
		}
		quoters[resolveDexVariant(dexName)] = arbitrage.DexQuoterConfig{
			Address: common.HexToAddress(q.Address),
			Dialect: dialect,
		}
	}

	caller := arbitrage.NewMulticall3Caller(aggregatorClient)
	return arbitrage.NewPreScreener(aggregatorAddr, caller, quoters)
}

// startMempoolMonitor wires the decoder/simulator/confirmation pipeline to
// a live node subscription. Callers invoke it only when the configured RPC
// exposes the newPendingTransactions feed (not every provider does). It
// also launches a block-watching loop that reports confirmations for
// every pending hash the monitor has observed (spec §4.12).
func startMempoolMonitor(ctx context.Context, client *ethclient.Client, source mempool.TxSource, store *pool.Store, lookupPair mempool.PairLookup, routers map[common.Address]mempool.RouterEntry, recorder *db.MySQLRecorder) {
	simulator := mempool.NewSimulator(store, lookupPair)
	confirm := mempool.NewConfirmationTracker()

	monitor := mempool.NewMonitor(source, routers, simulator, confirm, func(opp types.SimulatedOpportunity) {
		metrics.PendingSwapsSimulated.Inc()
		if err := recorder.RecordPendingSwap(opp, time.Now(), nil); err != nil {
			log.Printf("mempool: failed to record pending swap: %v", err)
		}
	})

	go func() {
		if err := monitor.Run(ctx); err != nil {
			log.Printf("mempool: monitor stopped: %v", err)
		}
	}()

	go runConfirmationLoop(ctx, client, confirm)
}

// runConfirmationLoop polls for new blocks, reports confirmations for any
// pending hash the monitor observed, and periodically evicts stale
// entries and logs the lead-time distribution (spec §4.12).
func runConfirmationLoop(ctx context.Context, client *ethclient.Client, confirm *mempool.ConfirmationTracker) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	var lastBlock uint64
	var lastReport time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := client.BlockNumber(ctx)
			if err != nil || head <= lastBlock {
				continue
			}
			for n := lastBlock + 1; n <= head; n++ {
				block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
				if err != nil {
					log.Printf("mempool: failed to fetch block %d for confirmation tracking: %v", n, err)
					continue
				}
				minedAt := time.Unix(int64(block.Time()), 0)
				for _, tx := range block.Transactions() {
					if leadTime, ok := confirm.Confirm(tx.Hash(), minedAt); ok {
						metrics.ConfirmationLeadTime.Observe(leadTime.Seconds())
					}
				}
			}
			lastBlock = head

			dropped := confirm.Evict(time.Now())
			if dropped > 0 {
				log.Printf("mempool: evicted %d stale pending observations", dropped)
			}
			if time.Since(lastReport) > time.Minute {
				log.Printf("mempool: confirmation stats: %s", confirm.Stats())
				lastReport = time.Now()
			}
		}
	}
}

// rpcTxSource adapts ethclient.Client (full transaction lookups) and the
// underlying rpc.Client (raw eth_subscribe) into mempool.TxSource.
type rpcTxSource struct {
	eth *ethclient.Client
	rpc *gethrpc.Client
}

func (s *rpcTxSource) EthSubscribe(ctx context.Context, channel interface{}, args ...interface{}) (*gethrpc.ClientSubscription, error) {
	return s.rpc.EthSubscribe(ctx, channel, args...)
}

func (s *rpcTxSource) TransactionByHash(ctx context.Context, hash common.Hash) (tx *gethtypes.Transaction, isPending bool, err error) {
	return s.eth.TransactionByHash(ctx, hash)
}

// buildPairLookup builds a mempool.PairLookup that resolves a token pair to
// its configured symbol by scanning the store's pools for that symbol: a
// pending swap's (tokenIn, tokenOut) matches a pair once some pool for that
// symbol has been synced at least once and exposes the same token0/token1.
func buildPairLookup(store *pool.Store, symbols []string) mempool.PairLookup {
	return func(tokenA, tokenB common.Address) (string, bool) {
		matches := func(t0, t1 common.Address) bool {
			return (t0 == tokenA && t1 == tokenB) || (t0 == tokenB && t1 == tokenA)
		}
		for _, symbol := range symbols {
			for _, p := range store.GetAllV2ForPair(symbol) {
				if matches(p.Token0, p.Token1) {
					return symbol, true
				}
			}
			for _, p := range store.GetAllV3ForPair(symbol) {
				if matches(p.Token0, p.Token1) {
					return symbol, true
				}
			}
		}
		return "", false
	}
}

// buildRouterEntries maps each configured router address to the DEX name
// DexVariantFromRouterFee expects, so the mempool monitor can resolve a
// swap's DexVariant the same way the rest of the pipeline does.
func buildRouterEntries(routers arbitrage.RouterMap) map[common.Address]mempool.RouterEntry {
	out := make(map[common.Address]mempool.RouterEntry, len(routers))
	for dex, addr := range routers {
		out[addr] = mempool.RouterEntry{Name: routerFamilyName(dex)}
	}
	return out
}

func pairSymbols(pairs []configs.PairYAMLData) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Symbol)
	}
	return out
}

// routerFamilyName reverses DexVariantFromRouterFee's name half: the
// router-name family a DexVariant belongs to, independent of its fee tier.
func routerFamilyName(dex types.DexVariant) string {
	switch {
	case dex == types.QuickswapV2:
		return "QuickswapV2"
	case dex == types.SushiswapV2:
		return "SushiswapV2"
	case dex == types.ApeswapV2:
		return "ApeswapV2"
	case dex == types.QuickswapV3:
		return "AlgebraV3"
	case dex == types.UniswapV3Fee100, dex == types.UniswapV3Fee500, dex == types.UniswapV3Fee3000, dex == types.UniswapV3Fee10000:
		return "UniswapV3"
	case dex == types.SushiV3Fee100, dex == types.SushiV3Fee500, dex == types.SushiV3Fee3000:
		return "SushiV3"
	default:
		return "GenericV2"
	}
}
