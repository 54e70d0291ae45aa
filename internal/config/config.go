// Package config loads the session configuration file. The same keys are
// accepted from INI (a [DEFAULT] section), YAML and JSON files, and the
// file's bytes are kept so each session can store an exact copy.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/trigger"
)

// MaxFileSize bounds the configuration file size.
const MaxFileSize = 1 * 1024 * 1024

// Key names as they appear in configuration files.
const (
	KeyEpochLength      = "EPOCH_LEN"
	KeyTriggerWidth     = "trigWidth"
	KeySessionStartCode = "T_SESSION_START"
	KeyTrialStartCode   = "T_START"
	KeySessionEndCode   = "T_SESSION_END"
	KeyIntervalFrames   = "T_INTERVAL"
	KeyBackgroundCode   = "T_BG"
	KeyEpochCount       = "N_EPOCH"
	KeyPinOrder         = "PIN"
	KeyDataPath         = "dataPath"
)

// Config is the validated, read-only session configuration.
type Config struct {
	EpochLength      int
	TriggerWidth     int
	SessionStartCode int
	SessionEndCode   int
	IntervalFrames   int
	BackgroundCode   int
	EpochCount       int
	PinOrder         trigger.PinOrder
	DataPath         string

	// TrialStartCode is accepted for compatibility with older files but is
	// never emitted. Nil when absent.
	TrialStartCode *int

	// Source is the path the configuration was loaded from.
	Source string
	// Raw holds the file contents exactly as read.
	Raw []byte
}

// fileConfig mirrors the on-disk keys. Pointer fields distinguish a missing
// key from a zero value.
type fileConfig struct {
	EpochLength      *int     `json:"EPOCH_LEN" yaml:"EPOCH_LEN"`
	TriggerWidth     *int     `json:"trigWidth" yaml:"trigWidth"`
	SessionStartCode *int     `json:"T_SESSION_START" yaml:"T_SESSION_START"`
	TrialStartCode   *int     `json:"T_START" yaml:"T_START"`
	SessionEndCode   *int     `json:"T_SESSION_END" yaml:"T_SESSION_END"`
	IntervalFrames   *int     `json:"T_INTERVAL" yaml:"T_INTERVAL"`
	BackgroundCode   *int     `json:"T_BG" yaml:"T_BG"`
	EpochCount       *int     `json:"N_EPOCH" yaml:"N_EPOCH"`
	PinOrder         *pinList `json:"PIN" yaml:"PIN"`
	DataPath         *string  `json:"dataPath" yaml:"dataPath"`
}

// Load reads, parses and validates the configuration at path. The format
// is chosen by extension: .ini, .yaml/.yml or .json.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat config file: %w", errs.ErrConfiguration, err)
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", errs.ErrConfiguration, fileInfo.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", errs.ErrConfiguration, err)
	}

	cfg, err := Parse(data, filepath.Ext(cleanPath))
	if err != nil {
		return nil, err
	}
	cfg.Source = cleanPath
	return cfg, nil
}

// Parse decodes data in the format named by ext and validates it.
func Parse(data []byte, ext string) (*Config, error) {
	var (
		fc  *fileConfig
		err error
	)
	switch strings.ToLower(ext) {
	case ".ini", ".cfg":
		fc, err = parseINI(data)
	case ".yaml", ".yml":
		fc = &fileConfig{}
		err = yaml.Unmarshal(data, fc)
	case ".json":
		fc = &fileConfig{}
		err = json.Unmarshal(data, fc)
	default:
		return nil, fmt.Errorf("%w: unsupported config extension %q", errs.ErrConfiguration, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", errs.ErrConfiguration, err)
	}

	cfg, err := fc.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Raw = append([]byte(nil), data...)
	return cfg, nil
}

func parseINI(data []byte) (*fileConfig, error) {
	// Values are literal: a trailing backslash ends a Windows directory
	// prefix and ";" or "#" after a value is part of it.
	f, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:     true,
		IgnoreContinuation:  true,
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, err
	}
	sec := f.Section(ini.DefaultSection)

	fc := &fileConfig{}
	ints := []struct {
		key string
		dst **int
	}{
		{KeyEpochLength, &fc.EpochLength},
		{KeyTriggerWidth, &fc.TriggerWidth},
		{KeySessionStartCode, &fc.SessionStartCode},
		{KeyTrialStartCode, &fc.TrialStartCode},
		{KeySessionEndCode, &fc.SessionEndCode},
		{KeyIntervalFrames, &fc.IntervalFrames},
		{KeyBackgroundCode, &fc.BackgroundCode},
		{KeyEpochCount, &fc.EpochCount},
	}
	for _, it := range ints {
		if !sec.HasKey(it.key) {
			continue
		}
		v, err := sec.Key(it.key).Int()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = &v
	}
	if sec.HasKey(KeyPinOrder) {
		p := pinList(sec.Key(KeyPinOrder).String())
		fc.PinOrder = &p
	}
	if sec.HasKey(KeyDataPath) {
		s := sec.Key(KeyDataPath).String()
		fc.DataPath = &s
	}
	return fc, nil
}

func (fc *fileConfig) resolve() (*Config, error) {
	var missing []string
	need := func(key string, v *int) int {
		if v == nil {
			missing = append(missing, key)
			return 0
		}
		return *v
	}

	cfg := &Config{
		EpochLength:      need(KeyEpochLength, fc.EpochLength),
		TriggerWidth:     need(KeyTriggerWidth, fc.TriggerWidth),
		SessionStartCode: need(KeySessionStartCode, fc.SessionStartCode),
		SessionEndCode:   need(KeySessionEndCode, fc.SessionEndCode),
		IntervalFrames:   need(KeyIntervalFrames, fc.IntervalFrames),
		BackgroundCode:   need(KeyBackgroundCode, fc.BackgroundCode),
		EpochCount:       need(KeyEpochCount, fc.EpochCount),
		TrialStartCode:   fc.TrialStartCode,
	}
	if fc.PinOrder == nil {
		missing = append(missing, KeyPinOrder)
	}
	if fc.DataPath == nil {
		missing = append(missing, KeyDataPath)
	} else {
		cfg.DataPath = *fc.DataPath
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing keys: %s", errs.ErrConfiguration, strings.Join(missing, ", "))
	}

	order, err := trigger.ParsePinOrder(string(*fc.PinOrder))
	if err != nil {
		return nil, err
	}
	cfg.PinOrder = order
	return cfg, nil
}

// Validate checks value ranges. Every failure wraps errs.ErrConfiguration.
func (c *Config) Validate() error {
	if c.EpochLength < 0 {
		return fmt.Errorf("%w: %s must be non-negative, got %d", errs.ErrConfiguration, KeyEpochLength, c.EpochLength)
	}
	if c.TriggerWidth < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", errs.ErrConfiguration, KeyTriggerWidth, c.TriggerWidth)
	}
	if c.IntervalFrames < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", errs.ErrConfiguration, KeyIntervalFrames, c.IntervalFrames)
	}
	// epoch codes run 1..N_EPOCH-1 and must fit in a trigger byte
	if c.EpochCount < 2 || c.EpochCount > trigger.MaxCode+1 {
		return fmt.Errorf("%w: %s must be in [2, %d], got %d", errs.ErrConfiguration, KeyEpochCount, trigger.MaxCode+1, c.EpochCount)
	}
	codes := []struct {
		key string
		v   int
	}{
		{KeySessionStartCode, c.SessionStartCode},
		{KeySessionEndCode, c.SessionEndCode},
		{KeyBackgroundCode, c.BackgroundCode},
	}
	for _, code := range codes {
		if err := trigger.ValidateCode(code.v); err != nil {
			return fmt.Errorf("%s: %w", code.key, err)
		}
	}
	if c.TrialStartCode != nil {
		if err := trigger.ValidateCode(*c.TrialStartCode); err != nil {
			return fmt.Errorf("%s: %w", KeyTrialStartCode, err)
		}
	}
	if err := c.PinOrder.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DataPath) == "" {
		return fmt.Errorf("%w: %s must not be empty", errs.ErrConfiguration, KeyDataPath)
	}
	return nil
}

// SnapshotName is the file name the configuration copy gets inside a
// session directory: "config" plus the source extension.
func (c *Config) SnapshotName() string {
	ext := filepath.Ext(c.Source)
	if ext == "" {
		ext = ".ini"
	}
	return "config" + ext
}

// Snapshot returns the bytes stored as the session's configuration copy:
// the file exactly as read, or an INI rendering when the Config was built
// in code.
func (c *Config) Snapshot() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}

	f := ini.Empty()
	sec := f.Section(ini.DefaultSection)
	keys := []struct {
		key, value string
	}{
		{KeyEpochLength, strconv.Itoa(c.EpochLength)},
		{KeyTriggerWidth, strconv.Itoa(c.TriggerWidth)},
		{KeySessionStartCode, strconv.Itoa(c.SessionStartCode)},
		{KeySessionEndCode, strconv.Itoa(c.SessionEndCode)},
		{KeyIntervalFrames, strconv.Itoa(c.IntervalFrames)},
		{KeyBackgroundCode, strconv.Itoa(c.BackgroundCode)},
		{KeyEpochCount, strconv.Itoa(c.EpochCount)},
		{KeyPinOrder, c.PinOrder.String()},
		{KeyDataPath, c.DataPath},
	}
	if c.TrialStartCode != nil {
		keys = append(keys, struct{ key, value string }{KeyTrialStartCode, strconv.Itoa(*c.TrialStartCode)})
	}
	for _, k := range keys {
		if _, err := sec.NewKey(k.key, k.value); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pinList accepts PIN either as "7,6,5,4,3,2,1,0" or as a list of
// integers.
type pinList string

func (p *pinList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = pinList(s)
		return nil
	}
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return fmt.Errorf("PIN must be a string or a list of integers")
	}
	*p = joinInts(ints)
	return nil
}

func (p *pinList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		var ints []int
		if err := n.Decode(&ints); err != nil {
			return err
		}
		*p = joinInts(ints)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	*p = pinList(s)
	return nil
}

func joinInts(ints []int) pinList {
	parts := make([]string, len(ints))
	for i, v := range ints {
		parts[i] = strconv.Itoa(v)
	}
	return pinList(strings.Join(parts, ","))
}
