// Package rpcserver exposes a running node's submit/observe surface as a
// JSON-RPC 2.0 service over HTTP, built on go-ethereum's generic rpc
// package (it implements the JSON-RPC 2.0 wire protocol independent of any
// Ethereum-specific chain logic, which is all this node uses it for).
package rpcserver

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"solidus/core"
)

// Server is an HTTP-bound JSON-RPC front end for one Node.
type Server struct {
	rpcSrv *rpc.Server
	http   *http.Server
}

// New builds a server exposing chainService under the "chain" namespace;
// methods are reachable as chain_submitTransaction, chain_getBalance, etc.
// It does not start listening; call ListenAndServe.
func New(node *core.Node, listenAddr string) (*Server, error) {
	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("chain", &chainService{node: node}); err != nil {
		return nil, err
	}
	return &Server{
		rpcSrv: rpcSrv,
		http:   &http.Server{Addr: listenAddr, Handler: rpcSrv},
	}, nil
}

// ListenAndServe blocks serving JSON-RPC requests until the server is
// closed or a listener error occurs.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops accepting new requests and releases the underlying RPC
// dispatcher.
func (s *Server) Close() error {
	s.rpcSrv.Stop()
	return s.http.Close()
}

// chainService is the reflection-registered RPC handler. Every method
// follows the go-ethereum rpc convention: an optional leading
// context.Context, then typed arguments, returning (result, error).
type chainService struct {
	node *core.Node
}

// SubmitTransactionArgs is the wire shape of chain_submitTransaction.
type SubmitTransactionArgs struct {
	ChainID   uint32 `json:"chain_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Nonce     uint64 `json:"nonce"`
	Data      string `json:"data,omitempty"`
	Signature string `json:"signature"`
}

func (c *chainService) SubmitTransaction(ctx context.Context, args SubmitTransactionArgs) (string, error) {
	from, err := core.ParseAddress(args.From)
	if err != nil {
		return "", err
	}
	to, err := core.ParseAddress(args.To)
	if err != nil {
		return "", err
	}
	var data []byte
	if args.Data != "" {
		data, err = hex.DecodeString(args.Data)
		if err != nil {
			return "", err
		}
	}
	sig, err := hex.DecodeString(args.Signature)
	if err != nil {
		return "", err
	}

	tx := core.NewTransaction(args.ChainID, from, to, args.Amount, args.Fee, args.Nonce, data)
	tx.Signature = sig

	hash, err := c.node.SubmitTransaction(tx)
	if err != nil {
		return hash.String(), err
	}
	return hash.String(), nil
}

func (c *chainService) GetBalance(ctx context.Context, address string) (uint64, error) {
	addr, err := core.ParseAddress(address)
	if err != nil {
		return 0, err
	}
	return c.node.GetBalance(addr), nil
}

func (c *chainService) GetNonce(ctx context.Context, address string) (uint64, error) {
	addr, err := core.ParseAddress(address)
	if err != nil {
		return 0, err
	}
	return c.node.GetNonce(addr), nil
}

func (c *chainService) GetChainTip(ctx context.Context) (core.ChainTip, error) {
	return c.node.GetChainTip()
}

func (c *chainService) GetBlockByHeight(ctx context.Context, height uint64) (*core.Block, error) {
	return c.node.GetBlockByHeight(height)
}

func (c *chainService) GetBlockByHash(ctx context.Context, hash string) (*core.Block, error) {
	h, err := core.ParseHash(hash)
	if err != nil {
		return nil, err
	}
	return c.node.GetBlockByHash(h)
}

func (c *chainService) StartMining(ctx context.Context, beneficiary string) error {
	addr, err := core.ParseAddress(beneficiary)
	if err != nil {
		return err
	}
	c.node.StartMining(addr)
	return nil
}

func (c *chainService) StopMining(ctx context.Context) error {
	c.node.StopMining()
	return nil
}
