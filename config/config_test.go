package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mezonai/bitvm20/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const genesisYAML = `config:
  levels: 4
  accounts:
    - private_key: "0x03e8"
      balance: "1000000000"
    - private_key: "03e9"
      nonce: 7
      balance: "115792089237316195423570985008687907853269984665640564039457584007913129639935"
`

func TestLoadGenesisAndBuildLedger(t *testing.T) {
	genesis, err := LoadGenesisConfig(writeFile(t, "genesis.yml", genesisYAML))
	require.NoError(t, err)
	assert.Equal(t, 4, genesis.Levels)
	require.Len(t, genesis.Accounts, 2)

	tree, err := BuildLedger(genesis)
	require.NoError(t, err)
	assert.Equal(t, 16, tree.Capacity())
	assert.Equal(t, 2, tree.Size())

	first, ok := tree.Get(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1_000_000_000), first.Balance.Uint64())
	second, ok := tree.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(7), second.Nonce)
	assert.Equal(t, 256, second.Balance.BitLen())

	keys, err := genesis.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, uint64(1000), keys[0].Uint64())
}

func TestGenesisDefaultsLevels(t *testing.T) {
	genesis, err := LoadGenesisConfig(writeFile(t, "genesis.yml", "config:\n  accounts: []\n"))
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultLevels, genesis.Levels)
}

func TestGenesisAccountErrors(t *testing.T) {
	_, err := GenesisAccount{PrivateKey: "zz"}.Key()
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	_, err = GenesisAccount{PrivateKey: "00"}.Key()
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	_, err = GenesisAccount{PrivateKey: "ff" + "ff" + "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"}.Key()
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)

	_, err = GenesisAccount{PrivateKey: "01", Balance: "-5"}.Entry()
	assert.ErrorIs(t, err, ErrInvalidBalance)

	entry, err := GenesisAccount{PrivateKey: "01"}.Entry()
	require.NoError(t, err)
	assert.True(t, entry.Balance.IsZero())

	_, err = BuildLedger(&GenesisConfig{Levels: 1, Accounts: []GenesisAccount{
		{PrivateKey: "01"}, {PrivateKey: "02"}, {PrivateKey: "03"},
	}})
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)

	_, err = LoadGenesisConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadProtocolConfig(t *testing.T) {
	cfg, err := LoadProtocolConfig(writeFile(t, "bitvm20.ini", "[protocol]\nverifiers = 5\nseed = run-1\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Verifiers)
	assert.Equal(t, "run-1", cfg.Seed)
	assert.Equal(t, DefaultSignatureSteps, cfg.SignatureSteps)
	assert.Equal(t, DefaultChallengeBlocks, cfg.ChallengeBlocks)

	cfg, err = LoadProtocolConfig(writeFile(t, "bitvm20.ini", "[protocol]\nchallenge_blocks = 6\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.ChallengeBlocks)
	_, err = LoadProtocolConfig(writeFile(t, "bitvm20.ini", "[protocol]\nchallenge_blocks = 0\n"))
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	_, err = LoadProtocolConfig(writeFile(t, "bitvm20.ini", "[protocol]\nsignature_steps = 12\n"))
	assert.ErrorIs(t, err, ErrInvalidProtocol)
	_, err = LoadProtocolConfig(writeFile(t, "bitvm20.ini", "[protocol]\nverifiers = 0\n"))
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	metrics, err := LoadMetricsConfig(writeFile(t, "bitvm20.ini", "[metrics]\nlisten_addr = :9100\n"))
	require.NoError(t, err)
	assert.Equal(t, ":9100", metrics.ListenAddr)
}
