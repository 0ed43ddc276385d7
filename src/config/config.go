package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	DefaultHotkey     = "Ctrl+Shift+M"
	HandoffFileName   = "instant_translator_action.txt"
)

// Backend and strategy names.
const (
	HotkeyBackendGrab = "grab"
	HotkeyBackendHook = "hook"

	ClipboardBackendXclip  = "xclip"
	ClipboardBackendNative = "native"

	InputBackendXTest   = "xtest"
	InputBackendXdotool = "xdotool"

	StrategyClipboard  = "clipboard"
	StrategyKeystrokes = "keystrokes"

	ProcessorDBus = "dbus"
	ProcessorLLM  = "llm"
)

// LoadOptions carries command-line input into Load.
type LoadOptions struct {
	// Flags, when set, override env and .env values for every flag that was
	// changed on the command line. Flag names use dashes ("log-level").
	Flags              *pflag.FlagSet
	APIKeyPathOverride string
}

type Config struct {
	Display string

	Hotkey        string
	HotkeyBackend string
	PollInterval  time.Duration
	DetectScale   bool

	ClipboardBackend string
	InputBackend     string
	InjectStrategy   string
	ClipboardSettle  time.Duration
	PasteSettle      time.Duration
	KeystrokeDelay   time.Duration
	ClickSettle      time.Duration

	Processor      string
	ProcessTimeout time.Duration
	APIKey         string
	APIKeyPath     string
	Model          string
	Providers      []string

	ActionsFile string
	HandoffPath string

	EnableFileLogging bool
	LogLevel          string
	LogFormat         string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use INSTANT_TRANSLATOR env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	v := newViper()
	if opts.Flags != nil {
		bindFlags(v, opts.Flags)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		Display:           v.GetString("display"),
		Hotkey:            v.GetString("hotkey"),
		HotkeyBackend:     oneOf(v.GetString("hotkey_backend"), HotkeyBackendGrab, HotkeyBackendHook),
		PollInterval:      millis(v.GetInt("poll_interval_ms"), 100),
		DetectScale:       v.GetBool("scale_detect"),
		ClipboardBackend:  oneOf(v.GetString("clipboard_backend"), ClipboardBackendXclip, ClipboardBackendNative),
		InputBackend:      oneOf(v.GetString("input_backend"), InputBackendXTest, InputBackendXdotool),
		InjectStrategy:    oneOf(v.GetString("inject_strategy"), StrategyClipboard, StrategyKeystrokes),
		ClipboardSettle:   millis(v.GetInt("clipboard_settle_ms"), 50),
		PasteSettle:       millis(v.GetInt("paste_settle_ms"), 100),
		KeystrokeDelay:    millis(v.GetInt("keystroke_delay_ms"), 10),
		ClickSettle:       millis(v.GetInt("click_settle_ms"), 75),
		Processor:         oneOf(v.GetString("processor"), ProcessorDBus, ProcessorLLM),
		ProcessTimeout:    seconds(v.GetInt("process_timeout_sec"), 30),
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		Model:             v.GetString("model"),
		Providers:         splitList(v.GetString("providers")),
		ActionsFile:       v.GetString("actions_file"),
		HandoffPath:       v.GetString("handoff_path"),
		EnableFileLogging: v.GetBool("enable_file_logging"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
	}
	if cfg.Hotkey == "" {
		cfg.Hotkey = DefaultHotkey
	}
	if cfg.HandoffPath == "" {
		cfg.HandoffPath = filepath.Join(os.TempDir(), HandoffFileName)
	}

	return cfg, nil
}

// newViper returns a viper instance with defaults and automatic env lookup.
// Keys are lowercase; the matching environment variable is the uppercase key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("display", "")
	v.SetDefault("hotkey", DefaultHotkey)
	v.SetDefault("hotkey_backend", HotkeyBackendGrab)
	v.SetDefault("poll_interval_ms", 100)
	v.SetDefault("scale_detect", true)
	v.SetDefault("clipboard_backend", ClipboardBackendXclip)
	v.SetDefault("input_backend", InputBackendXTest)
	v.SetDefault("inject_strategy", StrategyClipboard)
	v.SetDefault("clipboard_settle_ms", 50)
	v.SetDefault("paste_settle_ms", 100)
	v.SetDefault("keystroke_delay_ms", 10)
	v.SetDefault("click_settle_ms", 75)
	v.SetDefault("processor", ProcessorDBus)
	v.SetDefault("process_timeout_sec", 30)
	v.SetDefault("model", "")
	v.SetDefault("providers", "")
	v.SetDefault("actions_file", "")
	v.SetDefault("handoff_path", "")
	v.SetDefault("enable_file_logging", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
	v.AutomaticEnv()
	return v
}

// bindFlags maps dashed flag names onto viper keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		_ = v.BindPFlag(key, f)
	})
}

func isKnownKey(key string) bool {
	switch key {
	case "display", "hotkey", "hotkey_backend", "poll_interval_ms", "scale_detect",
		"clipboard_backend", "input_backend", "inject_strategy", "clipboard_settle_ms",
		"paste_settle_ms", "keystroke_delay_ms", "click_settle_ms", "processor",
		"process_timeout_sec", "model", "providers", "actions_file", "handoff_path",
		"enable_file_logging", "log_level", "log_format":
		return true
	}
	return false
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv("INSTANT_TRANSLATOR"); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENROUTER_API_KEY")
}

// oneOf lowercases value and returns it if allowed, else the first allowed value.
func oneOf(value string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return a
		}
	}
	return allowed[0]
}

func millis(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
