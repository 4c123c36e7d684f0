package types

// Signer 节点私钥的抽象，对hash做确定性签名
// 具体实现见privval
type Signer interface {
	// Sign 对hash签名
	Sign(hash []byte) ([]byte, error)

	// PubKey 返回签名者的身份
	PubKey() PubKey
}

// Verifier 验签接口，和Signer使用同一种签名方案
type Verifier interface {
	Verify(pubKey PubKey, signature, hash []byte) bool
}

// VerifierFunc 方便在测试中直接用函数实现Verifier
type VerifierFunc func(pubKey PubKey, signature, hash []byte) bool

func (f VerifierFunc) Verify(pubKey PubKey, signature, hash []byte) bool {
	return f(pubKey, signature, hash)
}
