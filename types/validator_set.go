// fork from github.com/tendermint/tendermint/types/validator_set.go
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ValidatorSet represent the fixed, ordered set of *Validator of one shard.
//
// The order is the order of the genesis file and never changes: proposer
// rotation indexes directly into it, so every node must agree on it.
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to validators should copy the value for safety.
type ValidatorSet struct {
	// NOTE: persisted via reflect, must be exported.
	Validators []*Validator `json:"validators"`

	index map[string]int
}

// NewValidatorSet initializes a ValidatorSet by copying over the values from
// `valz`, a list of Validators. If valz is nil or empty, the new ValidatorSet
// will have an empty list of Validators.
//
// The public keys of validators in `valz` must be unique otherwise the
// function panics.
func NewValidatorSet(valz []*Validator) *ValidatorSet {
	vals := &ValidatorSet{
		Validators: make([]*Validator, 0, len(valz)),
		index:      make(map[string]int, len(valz)),
	}

	for _, val := range valz {
		key := KeyString(val.PubKey)
		if _, ok := vals.index[key]; ok {
			panic(fmt.Sprintf("duplicate validator %v", val))
		}
		vals.index[key] = len(vals.Validators)
		vals.Validators = append(vals.Validators, val.Copy())
	}

	return vals
}

// NewValidatorSetFromKeys 按顺序用公钥构造验证者集合
func NewValidatorSetFromKeys(keys []PubKey) *ValidatorSet {
	valz := make([]*Validator, len(keys))
	for i, key := range keys {
		valz[i] = NewValidator(key, fmt.Sprintf("validator-%d", i))
	}
	return NewValidatorSet(valz)
}

func (vals *ValidatorSet) ValidateBasic() error {
	if vals.IsNilOrEmpty() {
		return errors.New("validator set is nil or empty")
	}

	for idx, val := range vals.Validators {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if validator set is nil or empty.
func (vals *ValidatorSet) IsNilOrEmpty() bool {
	return vals == nil || len(vals.Validators) == 0
}

// IsValidValidator 公钥是否属于这个分片
// 未知身份一律按非法输入处理
func (vals *ValidatorSet) IsValidValidator(pubKey PubKey) bool {
	if vals == nil || len(pubKey) == 0 {
		return false
	}
	_, ok := vals.index[KeyString(pubKey)]
	return ok
}

// GetByPubKey returns an index of the validator with pubKey and validator
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByPubKey(pubKey PubKey) (index int, val *Validator) {
	idx, ok := vals.index[KeyString(pubKey)]
	if !ok {
		return -1, nil
	}
	return idx, vals.Validators[idx].Copy()
}

// GetByIndex returns the validator itself (copy) by index.
// It returns nil if index is less than 0 or greater or equal to
// len(ValidatorSet.Validators).
func (vals *ValidatorSet) GetByIndex(index int) *Validator {
	if index < 0 || index >= len(vals.Validators) {
		return nil
	}
	return vals.Validators[index].Copy()
}

// List 返回有序的公钥列表
func (vals *ValidatorSet) List() []PubKey {
	keys := make([]PubKey, len(vals.Validators))
	for i, val := range vals.Validators {
		keys[i] = val.PubKey
	}
	return keys
}

// Size returns the length of the validator set.
func (vals *ValidatorSet) Size() int {
	if vals == nil {
		return 0
	}
	return len(vals.Validators)
}

// Iterate will run the given function over the set.
func (vals *ValidatorSet) Iterate(fn func(index int, val *Validator) bool) {
	for i, val := range vals.Validators {
		stop := fn(i, val.Copy())
		if stop {
			break
		}
	}
}

// String returns a string representation of ValidatorSet.
func (vals *ValidatorSet) String() string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	var valStrings []string
	vals.Iterate(func(index int, val *Validator) bool {
		valStrings = append(valStrings, val.String())
		return false
	})
	return fmt.Sprintf("ValidatorSet{%s}", strings.Join(valStrings, ", "))
}
