package config

// GenesisAccount is one pre-funded ledger slot.
type GenesisAccount struct {
	PrivateKey string `yaml:"private_key"` // hex, optional 0x prefix
	Nonce      uint64 `yaml:"nonce"`
	Balance    string `yaml:"balance"` // decimal
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	Levels   int              `yaml:"levels"`
	Accounts []GenesisAccount `yaml:"accounts"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

type ProtocolConfig struct {
	SignatureSteps  int    `ini:"signature_steps"`
	ChallengeBlocks int    `ini:"challenge_blocks"`
	Verifiers       int    `ini:"verifiers"`
	Seed            string `ini:"seed"`
}

type MetricsConfig struct {
	ListenAddr string `ini:"listen_addr"`
}
