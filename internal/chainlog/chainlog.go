// Package chainlog anchors audit decisions on an Ethereum-compatible chain.
//
// Each evaluated login produces a content hash and a risk code; the pair
// is submitted to the SecurityLogger contract's recordLog(bytes32,string)
// function. The chain is strictly a tamper-evidence layer: the
// authoritative decision is already durable locally before any submission
// begins, and every failure here is best-effort by contract.
package chainlog

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrDisabled          = errors.New("chainlog: ledger not configured")
	ErrInvalidPrivateKey = errors.New("chainlog: invalid private key")
	ErrRPCConnection     = errors.New("chainlog: RPC connection failed")
)

// SubmitError wraps submission failures with the failing operation.
type SubmitError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chainlog: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chainlog: %s failed: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// securityLoggerABI is the minimal ABI for the SecurityLogger contract.
const securityLoggerABI = `[
	{"inputs":[{"name":"logHash","type":"bytes32"},{"name":"riskCode","type":"string"}],"name":"recordLog","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const (
	// DefaultGasLimit for recordLog submissions.
	DefaultGasLimit = uint64(300000)

	// DefaultTimeout bounds one submission including nonce and gas queries.
	DefaultTimeout = 10 * time.Second
)

// fallbackGasPrice (20 gwei) is used when the node declines to suggest one.
var fallbackGasPrice = big.NewInt(20_000_000_000)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Submitter records decision anchors on chain. Implementations must be
// safe for concurrent use.
type Submitter interface {
	Enabled() bool
	Submit(ctx context.Context, contentHash [32]byte, riskCode string) (*SubmitResult, error)
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	TxHash string
	Nonce  uint64
}

// Config for the ledger client. All four fields are required; a client
// built from a partial config reports Enabled() == false and never opens
// a connection.
type Config struct {
	RPCURL          string
	PrivateKey      string // hex, with or without 0x prefix
	ChainID         int64
	ContractAddress string
}

// complete reports whether every required parameter is present.
func (c Config) complete() bool {
	return c.RPCURL != "" && c.PrivateKey != "" && c.ChainID != 0 && c.ContractAddress != ""
}

// Client submits recordLog transactions to the SecurityLogger contract.
type Client struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	contract   common.Address
	abi        abi.ABI
	enabled    bool
}

// Option configures the client.
type Option func(*Client)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(ec EthClient) Option {
	return func(c *Client) { c.client = ec }
}

var _ Submitter = (*Client)(nil)

// New creates a ledger client. A config missing any required parameter
// yields a disabled client and no error: misconfiguration turns the
// feature off cleanly rather than failing startup.
func New(cfg Config, opts ...Option) (*Client, error) {
	if !cfg.complete() {
		return &Client{}, nil
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(securityLoggerABI))
	if err != nil {
		return nil, fmt.Errorf("chainlog: parse ABI: %w", err)
	}

	c := &Client{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		contract:   common.HexToAddress(cfg.ContractAddress),
		abi:        parsedABI,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.client = client
	}

	return c, nil
}

// Enabled reports whether the ledger feature is configured.
func (c *Client) Enabled() bool { return c.enabled }

// Address returns the submitting account address, or "" when disabled.
func (c *Client) Address() string {
	if !c.enabled {
		return ""
	}
	return c.address.Hex()
}

// Submit signs and sends one recordLog transaction. It does not wait for
// the transaction to be mined; the tx hash is recorded and confirmation is
// left to out-of-band reconciliation.
func (c *Client) Submit(ctx context.Context, contentHash [32]byte, riskCode string) (*SubmitResult, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	data, err := c.abi.Pack("recordLog", contentHash, riskCode)
	if err != nil {
		return nil, &SubmitError{Op: "pack", Err: err}
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, &SubmitError{Op: "nonce", Err: err}
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil || gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = fallbackGasPrice
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), DefaultGasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, &SubmitError{Op: "sign", Err: err}
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &SubmitError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return &SubmitResult{TxHash: signedTx.Hash().Hex(), Nonce: nonce}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
