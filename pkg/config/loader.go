package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check their own invariants
// after parsing, for example that a selected driver has its address set.
type Validator interface {
	Validate() error
}

// Option adjusts how a configuration struct is parsed.
type Option func(*loadOptions)

type loadOptions struct {
	prefix   string
	envFiles []string
}

// WithPrefix makes every env tag of the struct resolve under prefix, e.g. "IAP_".
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) { o.prefix = prefix }
}

// WithEnvFiles loads the given dotenv files before parsing. Missing files are ignored.
// Files are read only on the first Load call of the process.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) { o.envFiles = append(o.envFiles, files...) }
}

type configCache struct {
	mu     sync.Mutex
	values map[string]any
	errs   map[string]error
}

var (
	globalCache = &configCache{
		values: make(map[string]any),
		errs:   make(map[string]error),
	}

	envFilesLoaded sync.Once
)

// Load parses environment variables into v. Each (type, prefix) pair is parsed
// once per process and later calls receive a copy of the cached value.
// If *T implements Validator, Validate runs after parsing and its error is
// joined with ErrInvalidConfig.
//
//	type StoreConfig struct {
//		Driver string `env:"STORE_DRIVER" envDefault:"memory"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg, config.WithPrefix("IAP_")); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	envFilesLoaded.Do(func() {
		files := o.envFiles
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, f := range files {
			_ = godotenv.Load(f)
		}
	})

	key := getTypeName[T]() + "|" + o.prefix

	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()

	if err, ok := globalCache.errs[key]; ok {
		return err
	}
	if cached, ok := globalCache.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := parse(v, o); err != nil {
		globalCache.errs[key] = err
		return err
	}
	globalCache.values[key] = *v
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Parse parses environment variables into v without touching the process-wide cache.
func Parse[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return parse(v, o)
}

func parse[T any](v *T, o *loadOptions) error {
	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}
	return nil
}

func getTypeName[T any]() string {
	t := reflect.TypeFor[T]()
	return t.PkgPath() + "." + t.String()
}
