package file

// LocalConfig configures a LocalStore from the environment.
type LocalConfig struct {
	Dir       string `env:"FILE_STORE_DIR" envDefault:"./data"`
	Extension string `env:"FILE_STORE_EXT" envDefault:".json"`
}

// NewLocalStoreFromConfig creates a LocalStore from cfg; opts are applied after it.
func NewLocalStoreFromConfig(cfg LocalConfig, opts ...LocalOption) (*LocalStore, error) {
	return NewLocalStore(cfg.Dir, append([]LocalOption{WithFileExtension(cfg.Extension)}, opts...)...)
}
