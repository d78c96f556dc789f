// Package config handles jverify.toml settings.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daimatz/jverify/pkg/repository"
	"github.com/daimatz/jverify/pkg/verifier"
)

// NoJmod disables the boot module lookup.
const NoJmod = "none"

// Config is a jverify.toml configuration.
type Config struct {
	Verifier   Verifier   `toml:"verifier"`
	Repository Repository `toml:"repository"`
	Log        Log        `toml:"log"`

	// Dir is the directory of the loaded file; relative paths are resolved
	// against it.
	Dir string `toml:"-"`
}

// Verifier tunes the verification passes.
type Verifier struct {
	CollectWarnings bool `toml:"collect-warnings"`
	Parallelism     int  `toml:"parallelism"`
}

// Repository lists where classes are looked up, in this order: the boot
// module, the jars, then the class path directories.
type Repository struct {
	// Jmod is the path of java.base.jmod. Empty means auto-detect and
	// NoJmod disables it.
	Jmod      string   `toml:"jmod"`
	Jars      []string `toml:"jars"`
	ClassPath []string `toml:"classpath"`
	CacheSize int      `toml:"cache-size"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Repository: Repository{ClassPath: []string{"."}, CacheSize: repository.DefaultCacheSize},
		Log:        Log{Level: "warn"},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}
	if c.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", path)
	}
	return c, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Verifier.Parallelism < 0 {
		return errors.Errorf("verifier.parallelism must not be negative, got %d", c.Verifier.Parallelism)
	}
	if c.Repository.CacheSize < 0 {
		return errors.Errorf("repository.cache-size must not be negative, got %d", c.Repository.CacheSize)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if c.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// Logger builds the configured logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// JmodPath returns the boot module to use, or "" when there is none.
func (c *Config) JmodPath() string {
	switch c.Repository.Jmod {
	case NoJmod:
		return ""
	case "":
		return FindJmod()
	}
	return c.resolve(c.Repository.Jmod)
}

// OpenRepository assembles the class repository. Archives are opened on
// first lookup, so a missing file only surfaces then.
func (c *Config) OpenRepository() (repository.Repository, error) {
	var chain repository.Chain
	if jmod := c.JmodPath(); jmod != "" {
		chain = append(chain, repository.NewArchiveRepository(jmod))
	}
	for _, jar := range c.Repository.Jars {
		chain = append(chain, repository.NewArchiveRepository(c.resolve(jar)))
	}
	for _, dir := range c.Repository.ClassPath {
		chain = append(chain, repository.NewDirRepository(c.resolve(dir), nil))
	}
	if len(chain) == 0 {
		return nil, errors.New("no class sources configured")
	}
	if c.Repository.CacheSize == 0 {
		return chain, nil
	}
	cached, err := repository.NewCachingRepository(chain, c.Repository.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// FactoryOptions translates the verifier settings.
func (c *Config) FactoryOptions(logger *zap.Logger) []verifier.Option {
	return []verifier.Option{
		verifier.WithLogger(logger),
		verifier.WithCollectWarnings(c.Verifier.CollectWarnings),
		verifier.WithParallelism(c.Verifier.Parallelism),
	}
}

// FindJmod locates java.base.jmod from JAVA_BASE_JMOD, then JAVA_HOME, then
// the usual Linux JDK install paths.
func FindJmod() string {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
