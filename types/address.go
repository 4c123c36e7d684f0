package types

import (
	"bytes"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// PubKey 验证者身份，直接使用公钥的原始字节
// json中以hex字符串表示
type PubKey = tmbytes.HexBytes

// KeyString 返回公钥的hex表示，用作各种pool的map key
func KeyString(key PubKey) string {
	return key.String()
}

func PubKeyEqual(a, b PubKey) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return bytes.Equal(a, b)
}
