package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/ledger"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/types"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPrivateKey = errors.New("config: invalid private key")
	ErrInvalidBalance    = errors.New("config: invalid balance")
	ErrInvalidProtocol   = errors.New("config: invalid protocol settings")
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", fmt.Sprintf("failed to open genesis file %s: %v", path, err))
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", fmt.Sprintf("failed to decode genesis YAML: %v", err))
		return nil, err
	}
	if cfgFile.Config.Levels == 0 {
		cfgFile.Config.Levels = ledger.DefaultLevels
	}
	logx.Info("CONFIG", fmt.Sprintf("loaded genesis: levels=%d, accounts=%d", cfgFile.Config.Levels, len(cfgFile.Config.Accounts)))
	return &cfgFile.Config, nil
}

// Key parses the account's private key. Zero and values outside the scalar
// field are refused.
func (a GenesisAccount) Key() (fr.Element, error) {
	var key fr.Element
	raw, err := hex.DecodeString(strings.TrimPrefix(a.PrivateKey, "0x"))
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	v := new(big.Int).SetBytes(raw)
	if v.Sign() == 0 || v.Cmp(fr.Modulus()) >= 0 {
		return key, fmt.Errorf("%w: out of range", ErrInvalidPrivateKey)
	}
	key.SetBigInt(v)
	return key, nil
}

func (a GenesisAccount) Entry() (*types.Entry, error) {
	key, err := a.Key()
	if err != nil {
		return nil, err
	}
	balance := new(uint256.Int)
	if a.Balance != "" {
		if balance, err = uint256.FromDecimal(a.Balance); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBalance, a.Balance, err)
		}
	}
	return types.NewEntry(&key, a.Nonce, balance), nil
}

// BuildLedger assigns every genesis account in file order.
func BuildLedger(genesis *GenesisConfig) (*ledger.Tree, error) {
	tree, err := ledger.New(genesis.Levels)
	if err != nil {
		return nil, err
	}
	for i, account := range genesis.Accounts {
		entry, err := account.Entry()
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		if _, err := tree.Assign(entry); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
	}
	return tree, nil
}

// Keys returns the private keys of all genesis accounts in slot order.
func (g *GenesisConfig) Keys() ([]fr.Element, error) {
	keys := make([]fr.Element, len(g.Accounts))
	for i, account := range g.Accounts {
		key, err := account.Key()
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		keys[i] = key
	}
	return keys, nil
}

// LoadProtocolConfig reads the [protocol] section of an .ini file. Missing
// keys take their defaults.
func LoadProtocolConfig(path string) (*ProtocolConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	protocolCfg := &ProtocolConfig{
		SignatureSteps:  DefaultSignatureSteps,
		ChallengeBlocks: DefaultChallengeBlocks,
		Verifiers:       DefaultVerifiers,
		Seed:            DefaultSeed,
	}
	if err := cfg.Section("protocol").MapTo(protocolCfg); err != nil {
		return nil, err
	}
	if err := protocolCfg.Validate(); err != nil {
		return nil, err
	}
	return protocolCfg, nil
}

func (c *ProtocolConfig) Validate() error {
	if c.SignatureSteps != DefaultSignatureSteps {
		return fmt.Errorf("%w: signature_steps must be %d, got %d", ErrInvalidProtocol, DefaultSignatureSteps, c.SignatureSteps)
	}
	if c.ChallengeBlocks <= 0 {
		return fmt.Errorf("%w: challenge_blocks must be positive", ErrInvalidProtocol)
	}
	if c.Verifiers <= 0 {
		return fmt.Errorf("%w: verifiers must be positive", ErrInvalidProtocol)
	}
	return nil
}

func LoadMetricsConfig(path string) (*MetricsConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	metricsCfg := &MetricsConfig{}
	if err := cfg.Section("metrics").MapTo(metricsCfg); err != nil {
		return nil, err
	}
	return metricsCfg, nil
}
