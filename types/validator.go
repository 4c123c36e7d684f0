// fork from github.com/tendermint/tendermint/types/validator.go
package types

import (
	"errors"
	"fmt"
)

// Validator 分片内一个有投票资格的身份
type Validator struct {
	PubKey PubKey `json:"pub_key"`
	Name   string `json:"name"`
}

// NewValidator returns a new validator with the given pubkey.
func NewValidator(pubKey PubKey, name string) *Validator {
	return &Validator{
		PubKey: pubKey,
		Name:   name,
	}
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if len(v.PubKey) == 0 {
		return errors.New("validator does not have a public key")
	}
	return nil
}

// Creates a new copy of the validator.
// Panics if the validator is nil.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	vCopy.PubKey = append(PubKey(nil), v.PubKey...)
	return &vCopy
}

// String returns a string representation of String.
func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%v %v}", v.Name, v.PubKey)
}
