package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"shardbft/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the immutable part of PrivValidator.
type FilePVKey struct {
	Address crypto.Address `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save PrivValidator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}

}

//-------------------------------------------------------------------------------

// FilePV 使用磁盘上的ed25519私钥签名，实现types.Signer
// NOTE: the directory containing pv.Key.filePath must already exist.
type FilePV struct {
	Key FilePVKey
}

var _ types.Signer = (*FilePV)(nil)

// NewFilePV generates a new validator from the given key and paths.
func NewFilePV(privKey crypto.PrivKey, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  privKey.PubKey().Address(),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV generates a new validator with randomly generated private key
// and sets the filePaths, but does not call Save().
func GenFilePV(keyFilePath string) *FilePV {
	return NewFilePV(ed25519.GenPrivKey(), keyFilePath)
}

// GenFilePVWithSeed 用同一个secret生成确定的私钥，测试和本地集群使用
func GenFilePVWithSeed(keyFilePath string, secret []byte) *FilePV {
	return NewFilePV(ed25519.GenPrivKeyFromSecret(secret), keyFilePath)
}

// GenFilePVWithSeedAndIdx 集群共享seed，每个节点按idx推导出自己的私钥
// gen-genesis和gen-validator用同样的(seed, idx)得到同样的密钥
func GenFilePVWithSeedAndIdx(keyFilePath string, seed int64, idx int) *FilePV {
	return GenFilePVWithSeed(keyFilePath, []byte(fmt.Sprintf("shardbft-%d-%d", seed, idx)))
}

// LoadFilePV loads a FilePV from the filePaths. If the file does not exist
// or cannot be decoded, the program will exit.
func LoadFilePV(keyFilePath string) *FilePV {
	pv, err := ReadFilePV(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	return pv
}

// ReadFilePV 和LoadFilePV一样，但把错误返回给调用者
func ReadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read PrivValidator key file")
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading PrivValidator key from %v", keyFilePath)
	}
	if pvKey.PrivKey == nil {
		return nil, fmt.Errorf("PrivValidator key file %v has no priv_key", keyFilePath)
	}

	// overwrite pubkey and address for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = pvKey.PubKey.Address()
	pvKey.filePath = keyFilePath

	return &FilePV{
		Key: pvKey,
	}, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePath
// or else generates a new one and saves it to the filePath.
func LoadOrGenFilePV(keyFilePath string) *FilePV {
	var pv *FilePV
	if tmos.FileExists(keyFilePath) {
		pv = LoadFilePV(keyFilePath)
	} else {
		pv = GenFilePV(keyFilePath)
		pv.Save()
	}
	return pv
}

// GetAddress returns the address of the validator.
func (pv *FilePV) GetAddress() crypto.Address {
	return pv.Key.Address
}

// PubKey 节点身份是公钥的原始字节
func (pv *FilePV) PubKey() types.PubKey {
	return types.PubKey(pv.Key.PubKey.Bytes())
}

// Sign 对hash签名，ed25519签名本身是确定性的
func (pv *FilePV) Sign(hash []byte) ([]byte, error) {
	sig, err := pv.Key.PrivKey.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("error signing hash: %v", err)
	}
	return sig, nil
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"PrivValidator{%v}",
		pv.GetAddress(),
	)
}

//------------------------------------------------------------------------------------

// Ed25519Verifier 校验FilePV产生的签名
type Ed25519Verifier struct{}

var _ types.Verifier = Ed25519Verifier{}

func (Ed25519Verifier) Verify(pubKey types.PubKey, signature, hash []byte) bool {
	if len(pubKey) != ed25519.PubKeySize || len(signature) == 0 {
		return false
	}
	return ed25519.PubKey(pubKey).VerifySignature(hash, signature)
}
