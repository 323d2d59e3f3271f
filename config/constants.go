package config

import (
	"github.com/mezonai/bitvm20/protocol"
	"github.com/mezonai/bitvm20/transaction"
)

const (
	DefaultChallengeBlocks = protocol.DefaultChallengeBlocks
	DefaultVerifiers       = 3
	DefaultSeed            = "bitvm20"

	// DefaultSignatureSteps is the only step count both sides agree on.
	DefaultSignatureSteps = transaction.SignatureStepCount
)
