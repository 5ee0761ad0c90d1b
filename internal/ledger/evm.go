package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/PhmVu/EBN-Besu/pkg/config"
)

// EVM implements Gateway against a Besu JSON-RPC endpoint.
type EVM struct {
	client       *ethclient.Client
	chainID      *big.Int
	classMgr     common.Address
	scoreMgr     common.Address
	classMgrABI  abi.ABI
	scoreMgrABI  abi.ABI
	gasLimit     uint64
	confirmAfter time.Duration
	pollEvery    time.Duration
	logger       *zap.Logger
}

// NewEVM dials the node and parses the contract ABIs. It does not probe
// the contracts; a wrong address surfaces on the first call.
func NewEVM(cfg config.LedgerConfig, logger *zap.Logger) (*EVM, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}
	cm, err := abi.JSON(strings.NewReader(classManagerABI))
	if err != nil {
		return nil, fmt.Errorf("parse class manager abi: %w", err)
	}
	sm, err := abi.JSON(strings.NewReader(scoreManagerABI))
	if err != nil {
		return nil, fmt.Errorf("parse score manager abi: %w", err)
	}
	return &EVM{
		client:       client,
		chainID:      big.NewInt(cfg.ChainID),
		classMgr:     common.HexToAddress(cfg.ClassManagerAddress),
		scoreMgr:     common.HexToAddress(cfg.ScoreManagerAddress),
		classMgrABI:  cm,
		scoreMgrABI:  sm,
		gasLimit:     cfg.GasLimit,
		confirmAfter: cfg.ConfirmTimeout,
		pollEvery:    cfg.PollInterval,
		logger:       logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (e *EVM) Close() {
	e.client.Close()
}

func (e *EVM) transact(ctx context.Context, signerKey string, to common.Address, calldata []byte) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse signer key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrUnavailable, err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", ErrUnavailable, err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), e.gasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: send: %v", ErrUnavailable, err)
	}

	hash := signed.Hash()
	e.logger.Debug("transaction submitted",
		zap.String("tx_hash", hash.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()))

	if err := e.awaitReceipt(ctx, hash); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (e *EVM) awaitReceipt(ctx context.Context, hash common.Hash) error {
	deadline := time.Now().Add(e.confirmAfter)
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s", ErrReverted, hash.Hex())
			}
			return nil
		}
		if err != ethereum.NotFound {
			return fmt.Errorf("%w: receipt: %v", ErrUnavailable, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: tx %s", ErrConfirmTimeout, hash.Hex())
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConfirmTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *EVM) call(ctx context.Context, to common.Address, calldata []byte) ([]byte, error) {
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (e *EVM) CreateClass(ctx context.Context, signerKey, classID, name string) (string, error) {
	data, err := e.classMgrABI.Pack("createClass", classID, name)
	if err != nil {
		return "", fmt.Errorf("pack createClass: %w", err)
	}
	return e.transact(ctx, signerKey, e.classMgr, data)
}

func (e *EVM) AddStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	data, err := e.classMgrABI.Pack("addStudent", classID, common.HexToAddress(studentAddr))
	if err != nil {
		return "", fmt.Errorf("pack addStudent: %w", err)
	}
	return e.transact(ctx, signerKey, e.classMgr, data)
}

func (e *EVM) ApproveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	data, err := e.classMgrABI.Pack("approveAndAddStudent", classID, common.HexToAddress(studentAddr))
	if err != nil {
		return "", fmt.Errorf("pack approveAndAddStudent: %w", err)
	}
	return e.transact(ctx, signerKey, e.classMgr, data)
}

func (e *EVM) RemoveStudent(ctx context.Context, signerKey, classID, studentAddr string) (string, error) {
	data, err := e.classMgrABI.Pack("removeStudent", classID, common.HexToAddress(studentAddr))
	if err != nil {
		return "", fmt.Errorf("pack removeStudent: %w", err)
	}
	return e.transact(ctx, signerKey, e.classMgr, data)
}

func (e *EVM) CloseClass(ctx context.Context, signerKey, classID string) (string, error) {
	data, err := e.classMgrABI.Pack("closeClass", classID)
	if err != nil {
		return "", fmt.Errorf("pack closeClass: %w", err)
	}
	return e.transact(ctx, signerKey, e.classMgr, data)
}

func (e *EVM) IsStudentAllowed(ctx context.Context, classID, studentAddr string) (bool, error) {
	data, err := e.classMgrABI.Pack("isStudentAllowed", classID, common.HexToAddress(studentAddr))
	if err != nil {
		return false, fmt.Errorf("pack isStudentAllowed: %w", err)
	}
	out, err := e.call(ctx, e.classMgr, data)
	if err != nil {
		return false, err
	}
	vals, err := e.classMgrABI.Unpack("isStudentAllowed", out)
	if err != nil {
		return false, fmt.Errorf("unpack isStudentAllowed: %w", err)
	}
	allowed, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isStudentAllowed result type")
	}
	return allowed, nil
}

func (e *EVM) GetClassInfo(ctx context.Context, classID string) (*ClassInfo, error) {
	data, err := e.classMgrABI.Pack("getClassInfo", classID)
	if err != nil {
		return nil, fmt.Errorf("pack getClassInfo: %w", err)
	}
	out, err := e.call(ctx, e.classMgr, data)
	if err != nil {
		return nil, err
	}
	vals, err := e.classMgrABI.Unpack("getClassInfo", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getClassInfo: %w", err)
	}
	info := &ClassInfo{}
	if v, ok := vals[0].(string); ok {
		info.Name = v
	}
	if v, ok := vals[1].(common.Address); ok {
		info.Teacher = v.Hex()
	}
	if v, ok := vals[2].(bool); ok {
		info.Open = v
	}
	if v, ok := vals[3].(*big.Int); ok {
		info.StudentCount = v.Uint64()
	}
	return info, nil
}

func (e *EVM) RegisterClass(ctx context.Context, signerKey, classID string) (string, error) {
	data, err := e.scoreMgrABI.Pack("registerClass", classID)
	if err != nil {
		return "", fmt.Errorf("pack registerClass: %w", err)
	}
	return e.transact(ctx, signerKey, e.scoreMgr, data)
}

func (e *EVM) SubmitWork(ctx context.Context, signerKey, classID, assignmentID, contentHash string) (string, error) {
	data, err := e.scoreMgrABI.Pack("submitAssignment", classID, assignmentID, contentHash)
	if err != nil {
		return "", fmt.Errorf("pack submitAssignment: %w", err)
	}
	return e.transact(ctx, signerKey, e.scoreMgr, data)
}

func (e *EVM) RecordScore(ctx context.Context, signerKey, classID, assignmentID, studentAddr string, score uint8) (string, error) {
	data, err := e.scoreMgrABI.Pack("recordScore", classID, assignmentID, common.HexToAddress(studentAddr), score)
	if err != nil {
		return "", fmt.Errorf("pack recordScore: %w", err)
	}
	return e.transact(ctx, signerKey, e.scoreMgr, data)
}

func (e *EVM) GetScore(ctx context.Context, classID, assignmentID, studentAddr string) (*ScoreRecord, error) {
	data, err := e.scoreMgrABI.Pack("getScore", classID, assignmentID, common.HexToAddress(studentAddr))
	if err != nil {
		return nil, fmt.Errorf("pack getScore: %w", err)
	}
	out, err := e.call(ctx, e.scoreMgr, data)
	if err != nil {
		return nil, err
	}
	vals, err := e.scoreMgrABI.Unpack("getScore", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getScore: %w", err)
	}
	rec := &ScoreRecord{}
	if v, ok := vals[0].(uint8); ok {
		rec.Value = v
	}
	if v, ok := vals[1].(uint64); ok && v > 0 {
		rec.RecordedAt = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := vals[2].(common.Address); ok {
		rec.RecordedBy = v.Hex()
	}
	if v, ok := vals[3].(bool); ok {
		rec.Exists = v
	}
	return rec, nil
}
