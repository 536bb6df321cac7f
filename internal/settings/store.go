package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"media-compressor/internal/logging"
)

// FileName is the settings file name inside the application data dir.
const FileName = "settings.yaml"

// EnvPrefix prefixes environment overrides, e.g. MC_VIDEO_CRF=30.
const EnvPrefix = "MC"

// Store reads and writes the settings file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the given YAML file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. Unknown keys are logged and ignored; keys
// missing from the file take their defaults and the file is rewritten.
// Environment overrides apply to the returned value but are never persisted.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := Defaults()
	known := knownKeys()

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaultValues(&defaults) {
		v.SetDefault(key, value)
	}

	exists := false
	if _, err := os.Stat(s.path); err == nil {
		exists = true
		v.SetConfigFile(s.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings %s: %w", s.path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat settings %s: %w", s.path, err)
	}

	var missing []string
	for _, key := range known {
		if !exists || !v.InConfig(key) {
			missing = append(missing, key)
		}
	}
	for _, key := range v.AllKeys() {
		if !slices.Contains(known, topLevel(key)) {
			logging.Warn("Ignoring unknown settings key %q in %s", key, s.path)
		}
	}

	st := &Settings{}
	if err := v.Unmarshal(st); err != nil {
		return nil, fmt.Errorf("failed to decode settings %s: %w", s.path, err)
	}

	if len(missing) > 0 {
		if exists {
			logging.Info("Backfilling %d missing settings with defaults: %s", len(missing), strings.Join(missing, ", "))
		} else {
			logging.Info("Settings file %s not found, writing defaults", s.path)
		}
		if err := s.save(st); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range known {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	effective := &Settings{}
	if err := v.Unmarshal(effective); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return effective, nil
}

// Save writes the settings file atomically.
func (s *Store) Save(st *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(st)
}

func (s *Store) save(st *Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// knownKeys returns the settings keys in declaration order.
func knownKeys() []string {
	t := reflect.TypeOf(Settings{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func defaultValues(st *Settings) map[string]interface{} {
	values := make(map[string]interface{})
	v := reflect.ValueOf(st).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		field := v.Field(i)
		if field.Kind() == reflect.String {
			// Named string types like PathLayout are stored as plain strings.
			values[key] = field.String()
			continue
		}
		values[key] = field.Interface()
	}
	return values
}

func topLevel(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}
