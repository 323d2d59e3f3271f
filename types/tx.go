package types

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// UserTransaction is a transfer intent addressed by slot index. The signature
// fields are copied as-is into the resolved transaction.
type UserTransaction struct {
	FromUserID int            `json:"from_user_id"`
	ToUserID   int            `json:"to_user_id"`
	Value      uint256.Int    `json:"value"`
	R          bn254.G1Affine `json:"-"`
	S          fr.Element     `json:"-"`
}

func NewUserTransaction(from, to int, value *uint256.Int) *UserTransaction {
	utx := &UserTransaction{FromUserID: from, ToUserID: to}
	utx.Value.Set(value)
	return utx
}

// IsSigned reports whether a signature has been attached.
func (utx *UserTransaction) IsSigned() bool {
	return !utx.R.IsInfinity() || !utx.S.IsZero()
}
