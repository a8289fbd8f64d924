// Ethereum-backed ledger client. The medicine tracker contract lives on an
// EVM chain (Polygon Amoy in the original deployment); this client wraps
// go-ethereum's bound-contract machinery behind the narrow Client interface
// so the pipeline never sees transport, signing, or gas concerns.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// registerMedicineABI is the single contract method this backend calls.
const registerMedicineABI = `[{
	"inputs": [
		{"internalType": "string",  "name": "batchId",            "type": "string"},
		{"internalType": "string",  "name": "name",               "type": "string"},
		{"internalType": "string",  "name": "manufacturer",       "type": "string"},
		{"internalType": "uint256", "name": "manufacturingDate",  "type": "uint256"},
		{"internalType": "uint256", "name": "expiryDate",         "type": "uint256"}
	],
	"name": "registerMedicine",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// EthConfig holds the connection and signing parameters for the contract.
type EthConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string // hex-encoded secp256k1 key, no 0x prefix
	ChainID         int64
}

// EthClient submits records to the MedicineTracker contract. Safe for
// concurrent use; transaction creation is serialized so concurrent
// submissions get distinct nonces.
type EthClient struct {
	backend  *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts

	// mu serializes Transact calls: nonce assignment reads the pending
	// nonce from the node and two unsynchronized writers would collide.
	mu sync.Mutex
}

// DialEth connects to the RPC endpoint and binds the tracker contract.
func DialEth(ctx context.Context, cfg EthConfig) (*EthClient, error) {
	if cfg.RPCURL == "" || cfg.ContractAddress == "" || cfg.PrivateKeyHex == "" {
		return nil, errors.New("ledger: rpc url, contract address, and private key are required")
	}

	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse private key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("ledger: build transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registerMedicineABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse abi: %w", err)
	}
	addr := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(addr, parsed, backend, backend, backend)

	return &EthClient{backend: backend, contract: contract, auth: auth}, nil
}

// RegisterRecord sends a registerMedicine transaction and returns its hash
// as the pending handle. Gas estimation, nonce management, and signing are
// handled by the bound contract.
func (e *EthClient) RegisterRecord(ctx context.Context, args RecordArgs) (*Pending, error) {
	opts := *e.auth
	opts.Context = ctx

	e.mu.Lock()
	tx, err := e.contract.Transact(&opts, "registerMedicine",
		args.BatchID,
		args.Name,
		args.Manufacturer,
		big.NewInt(args.ManufacturingAt),
		big.NewInt(args.ExpiryAt),
	)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ledger: register record: %w", err)
	}
	return &Pending{Ref: tx.Hash().Hex(), tx: tx}, nil
}

// AwaitConfirmation blocks until the transaction is mined and checks the
// receipt status. A reverted transaction counts as a failed submission.
func (e *EthClient) AwaitConfirmation(ctx context.Context, p *Pending) (string, error) {
	tx, ok := p.tx.(*types.Transaction)
	if !ok {
		return "", errors.New("ledger: handle does not carry an ethereum transaction")
	}
	receipt, err := bind.WaitMined(ctx, e.backend, tx)
	if err != nil {
		return "", fmt.Errorf("ledger: await confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("ledger: transaction %s reverted", p.Ref)
	}
	return p.Ref, nil
}

// Close releases the underlying RPC connection.
func (e *EthClient) Close() {
	e.backend.Close()
}
