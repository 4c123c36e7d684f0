package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrTxNoID        = errors.New("tx had no id")
	ErrTxNoSender    = errors.New("tx had no sender")
	ErrTxNoSignature = errors.New("tx had no signature")
	ErrTxWrongHash   = errors.New("tx hash does not match its input")
)

// TxInput 客户端提交的原始数据
type TxInput struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Hash 计算H(input)
func (in TxInput) Hash() []byte {
	h := tmhash.New()
	h.Write(in.Data)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(in.Timestamp.UnixNano()))
	h.Write(ts[:])
	return h.Sum(nil)
}

// Transaction 是一个值对象，进入pool或者chain时都是拷贝
type Transaction struct {
	ID        string           `json:"id"`
	From      PubKey           `json:"from"`
	Input     TxInput          `json:"input"`
	Hash      tmbytes.HexBytes `json:"hash"`
	Signature tmbytes.HexBytes `json:"signature"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewTransaction 生成一条新交易并用signer签名
func NewTransaction(data []byte, signer Signer) (Transaction, error) {
	now := time.Now()
	tx := Transaction{
		ID:   uuid.New().String(),
		From: signer.PubKey(),
		Input: TxInput{
			Data:      data,
			Timestamp: now,
		},
		CreatedAt: now,
	}
	tx.Hash = tx.Input.Hash()

	sig, err := signer.Sign(tx.Hash)
	if err != nil {
		return Transaction{}, err
	}
	tx.Signature = sig
	return tx, nil
}

// ValidateBasic 只检查格式上的错误，签名的校验见VerifyTx
func (tx *Transaction) ValidateBasic() error {
	if tx.ID == "" {
		return ErrTxNoID
	}
	if len(tx.From) == 0 {
		return ErrTxNoSender
	}
	if len(tx.Signature) == 0 {
		return ErrTxNoSignature
	}
	if !bytes.Equal(tx.Input.Hash(), tx.Hash) {
		return ErrTxWrongHash
	}
	return nil
}

// VerifyTx 签名必须能用From验证H(input)，任何一项不满足都返回false
func VerifyTx(tx Transaction, verifier Verifier) bool {
	if err := tx.ValidateBasic(); err != nil {
		return false
	}
	return verifier.Verify(tx.From, tx.Signature, tx.Hash)
}

// ===== tx array =====
type Txs []Transaction

// Hash 返回交易形成的merkle tree的根value
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash
	}
	return merkle.HashFromByteSlices(txBzs)
}

// IDs 返回交易id的集合
func (txs Txs) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		ids[tx.ID] = struct{}{}
	}
	return ids
}

func (txs Txs) Copy() Txs {
	if txs == nil {
		return nil
	}
	cp := make(Txs, len(txs))
	copy(cp, txs)
	return cp
}
