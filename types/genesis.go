package types

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
)

// GenesisValidator 创世文件中的验证者
type GenesisValidator struct {
	PubKey PubKey `json:"pub_key"`
	Name   string `json:"name"`
}

// GenesisDoc 描述一个分片的初始配置，所有节点必须一致
type GenesisDoc struct {
	ShardID      string             `json:"shard_id"`
	GenesisTime  time.Time          `json:"genesis_time"`
	SignerScheme string             `json:"signer_scheme"`
	Validators   []GenesisValidator `json:"validators"`
}

func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ShardID == "" {
		return errors.New("genesis doc must include non-empty shard_id")
	}
	if len(genDoc.Validators) == 0 {
		return errors.New("genesis doc must include at least one validator")
	}
	for i, v := range genDoc.Validators {
		if len(v.PubKey) == 0 {
			return fmt.Errorf("genesis validator #%d has no pub_key", i)
		}
		if v.Name == "" {
			genDoc.Validators[i].Name = fmt.Sprintf("validator-%d", i)
		}
	}
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now()
	}
	return nil
}

// ValidatorSet 按创世文件的顺序构造验证者集合
func (genDoc *GenesisDoc) ValidatorSet() *ValidatorSet {
	valz := make([]*Validator, len(genDoc.Validators))
	for i, v := range genDoc.Validators {
		valz[i] = NewValidator(v.PubKey, v.Name)
	}
	return NewValidatorSet(valz)
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, genDocBytes, 0644)
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read GenesisDoc file")
	}
	genDoc := &GenesisDoc{}
	if err := tmjson.Unmarshal(jsonBlob, genDoc); err != nil {
		return nil, errors.Wrapf(err, "error reading GenesisDoc at %s", genDocFile)
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, errors.Wrapf(err, "invalid GenesisDoc at %s", genDocFile)
	}
	return genDoc, nil
}
