package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = ".taisaku/trouble_list.csv"
	}
	if cfg.Store.LockTimeoutSeconds == 0 {
		cfg.Store.LockTimeoutSeconds = 10
	}
	if cfg.Store.LockRetryMillis == 0 {
		cfg.Store.LockRetryMillis = 100
	}
	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".taisaku/models/sentence-bert.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "sentence-bert-base-ja-mean-tokens"
	}
	if cfg.Search.DefaultTopN == 0 {
		cfg.Search.DefaultTopN = 5
	}
	if cfg.Search.MaxTopN == 0 {
		cfg.Search.MaxTopN = 100
	}
	if cfg.Search.WarmBatchSize == 0 {
		cfg.Search.WarmBatchSize = 32
	}
	if cfg.Auth.SystemPassphraseEnv == "" {
		cfg.Auth.SystemPassphraseEnv = "TAISAKU_SYSTEM_PASSPHRASE"
	}
	if cfg.Auth.RegisterPassphraseEnv == "" {
		cfg.Auth.RegisterPassphraseEnv = "TAISAKU_REGISTER_PASSPHRASE"
	}
}
