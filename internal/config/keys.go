package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kList // comma-separated in env/file form
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "AKADION_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "AKADION_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "debug", typ: kBool, env: "AKADION_DEBUG",
		apply:   func(cfg *Config, v any) { cfg.Debug = v.(bool) },
		extract: func(cfg Config) any { return cfg.Debug },
	},
	{
		key: "log.level", typ: kString, env: "AKADION_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "gemini.api_key", typ: kString, env: "AKADION_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.base_url", typ: kString, env: "AKADION_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.model", typ: kString, env: "AKADION_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.embed_model", typ: kString, env: "AKADION_GEMINI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AKADION_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.collection_name", typ: kString, env: "AKADION_STORAGE_COLLECTION_NAME",
		apply:   func(cfg *Config, v any) { cfg.Storage.CollectionName = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.CollectionName },
	},
	{
		key: "rag.chunk_size", typ: kInt, env: "AKADION_RAG_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.RAG.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.ChunkSize },
	},
	{
		key: "rag.chunk_overlap", typ: kInt, env: "AKADION_RAG_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.RAG.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.ChunkOverlap },
	},
	{
		key: "rag.top_k", typ: kInt, env: "AKADION_RAG_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.RAG.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.TopK },
	},
	{
		key: "rag.temperature", typ: kFloat, env: "AKADION_RAG_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.RAG.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.RAG.Temperature },
	},
	{
		key: "rag.max_output_tokens", typ: kInt, env: "AKADION_RAG_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.RAG.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.MaxOutputTokens },
	},
	{
		key: "rag.system_prompt", typ: kString, env: "AKADION_RAG_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.RAG.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.RAG.SystemPrompt },
	},
	{
		key: "conversation.max_history_messages", typ: kInt, env: "AKADION_CONVERSATION_MAX_HISTORY_MESSAGES",
		apply:   func(cfg *Config, v any) { cfg.Conversation.MaxHistoryMessages = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.MaxHistoryMessages },
	},
	{
		key: "conversation.session_timeout_hours", typ: kInt, env: "AKADION_CONVERSATION_SESSION_TIMEOUT_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Conversation.SessionTimeoutHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.SessionTimeoutHours },
	},
	{
		key: "upload.max_file_size", typ: kInt, env: "AKADION_UPLOAD_MAX_FILE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxFileSize = int64(v.(int)) },
		extract: func(cfg Config) any { return cfg.Upload.MaxFileSize },
	},
	{
		key: "upload.allowed_types", typ: kList, env: "AKADION_UPLOAD_ALLOWED_TYPES",
		apply:   func(cfg *Config, v any) { cfg.Upload.AllowedTypes = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Upload.AllowedTypes, ",") },
	},
	{
		key: "cors.allowed_origins", typ: kList, env: "AKADION_CORS_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.CORS.AllowedOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.CORS.AllowedOrigins, ",") },
	},
}

// applyFile overlays values from a flat JSON object keyed by config key
// (e.g. {"server.port": 9000}). A missing file is not an error.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	for _, s := range specs {
		if s.secret {
			continue
		}
		v, ok := raw[s.key]
		if !ok {
			continue
		}
		switch s.typ {
		case kString:
			if sv, ok := v.(string); ok {
				s.apply(cfg, sv)
			}
		case kInt:
			// JSON numbers decode as float64.
			if fv, ok := v.(float64); ok {
				s.apply(cfg, int(fv))
			}
		case kBool:
			if bv, ok := v.(bool); ok {
				s.apply(cfg, bv)
			}
		case kFloat:
			if fv, ok := v.(float64); ok {
				s.apply(cfg, fv)
			}
		case kList:
			switch lv := v.(type) {
			case string:
				s.apply(cfg, splitList(lv))
			case []any:
				var items []string
				for _, item := range lv {
					if sv, ok := item.(string); ok {
						items = append(items, sv)
					}
				}
				s.apply(cfg, items)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kList:
			s.apply(cfg, splitList(raw))
		}
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	var items []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the JSON config file, creating it if needed.
func SetKey(key, value string) error {
	var spec *keySpec
	for i := range specs {
		if specs[i].key == key {
			spec = &specs[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if spec.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, spec.env)
	}

	path := ConfigFilePath()
	raw := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	switch spec.typ {
	case kString, kList:
		raw[key] = value
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		raw[key] = i
	case kBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value for %s: %w", key, err)
		}
		raw[key] = b
	case kFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %w", key, err)
		}
		raw[key] = f
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
