package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
}

func newFakeNode(t *testing.T, chainIDCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		var result string
		switch req.Method {
		case "eth_chainId":
			if chainIDCalls != nil {
				chainIDCalls.Add(1)
			}
			result = "0xaa36a7"
		case "eth_blockNumber":
			result = "0x4a21"
		default:
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func TestFetchChainSnapshot(t *testing.T) {
	t.Parallel()

	var chainIDCalls atomic.Int32
	node := newFakeNode(t, &chainIDCalls)
	defer node.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewClient(ctx, Config{Name: "sepolia", RPCURL: node.URL, Notes: "testnet"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "0xaa36a7" {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber != "0x4a21" {
		t.Fatalf("unexpected block number %s", snapshot.BlockNumber)
	}
	if snapshot.Notes != "testnet" {
		t.Fatalf("unexpected notes %s", snapshot.Notes)
	}

	// 第二次快照复用缓存的链 ID。
	if _, err := client.FetchChainSnapshot(ctx); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if got := chainIDCalls.Load(); got != 1 {
		t.Fatalf("expected chain id to be fetched once, got %d", got)
	}
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing RPC URL")
	}
}
