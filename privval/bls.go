package privval

import (
	"encoding/binary"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"

	"shardbft/types"
)

var blsSuite = bn256.NewSuite()

// BLSSigner 集群共享一个seed，每个节点按自己的idx推导出私钥
// 同样的(seed, idx)永远得到同样的密钥
type BLSSigner struct {
	priv   kyber.Scalar
	pubKey types.PubKey
}

var _ types.Signer = (*BLSSigner)(nil)

func NewBLSSigner(seed int64, idx int) (*BLSSigner, error) {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(idx))

	priv := blsSuite.G2().Scalar().SetBytes(tmhash.Sum(buf[:]))
	pub := blsSuite.G2().Point().Mul(priv, nil)
	pubBz, err := pub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal bls public key: %w", err)
	}
	return &BLSSigner{priv: priv, pubKey: pubBz}, nil
}

func (s *BLSSigner) PubKey() types.PubKey {
	return s.pubKey
}

func (s *BLSSigner) Sign(hash []byte) ([]byte, error) {
	return bls.Sign(blsSuite, s.priv, hash)
}

func (s *BLSSigner) String() string {
	return fmt.Sprintf("BLSSigner{%v}", s.pubKey)
}

// BLSVerifier 校验BLSSigner产生的签名
type BLSVerifier struct{}

var _ types.Verifier = BLSVerifier{}

func (BLSVerifier) Verify(pubKey types.PubKey, signature, hash []byte) bool {
	if len(pubKey) == 0 || len(signature) == 0 {
		return false
	}
	pub := blsSuite.G2().Point()
	if err := pub.UnmarshalBinary(pubKey); err != nil {
		return false
	}
	return bls.Verify(blsSuite, pub, hash, signature) == nil
}

// Scheme names accepted by NewVerifier and the signer_scheme config key.
const (
	SchemeEd25519 = "ed25519"
	SchemeBLS     = "bls"
)

// NewVerifier 返回和签名方案对应的Verifier
func NewVerifier(scheme string) (types.Verifier, error) {
	switch scheme {
	case "", SchemeEd25519:
		return Ed25519Verifier{}, nil
	case SchemeBLS:
		return BLSVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown signer scheme %q", scheme)
	}
}
