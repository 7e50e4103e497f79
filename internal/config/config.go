package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Gemini       GeminiConfig
	Storage      StorageConfig
	RAG          RAGConfig
	Conversation ConversationConfig
	Upload       UploadConfig
	CORS         CORSConfig
	Debug        bool
}

type ServerConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	Level string
}

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
}

type StorageConfig struct {
	DataDir        string
	CollectionName string
}

type RAGConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
}

type ConversationConfig struct {
	MaxHistoryMessages  int
	SessionTimeoutHours int
}

type UploadConfig struct {
	MaxFileSize  int64
	AllowedTypes []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// defaultSystemPrompt is the system instruction rendered on every RAG turn.
// The {conversation_history} and {context} placeholders are filled by the
// RAG orchestrator before the prompt is sent to the generation model.
const defaultSystemPrompt = `You are the Akadion Community Guide, a friendly and supportive AI assistant. Your purpose is to welcome graduate students and postdocs to our global community, help them navigate the platform, and encourage them to connect with their peers.

Your tone should be welcoming, encouraging, and knowledgeable, like a helpful senior lab mate or a friendly mentor. Avoid being overly formal or robotic. Use clear, concise language.

Answer user questions using the context from uploaded documents below. Frame your answers around the concept of community and encourage users to share their own expertise. You are not an academic consultant or a therapist: if a user asks for specific research advice or expresses significant personal distress, gently redirect them to the human-led resources on the platform. If you cannot answer a question from the provided context, direct the user to the official Help Center.

Previous conversation (if any):
{conversation_history}

Context from uploaded documents:
{context}`

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Gemini: GeminiConfig{
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-1.5-flash",
			EmbedModel: "text-embedding-004",
		},
		Storage: StorageConfig{
			DataDir:        defaultDataDir(),
			CollectionName: "knowledge_base",
		},
		RAG: RAGConfig{
			ChunkSize:       1000,
			ChunkOverlap:    200,
			TopK:            5,
			Temperature:     0.1,
			MaxOutputTokens: 2048,
			SystemPrompt:    defaultSystemPrompt,
		},
		Conversation: ConversationConfig{
			MaxHistoryMessages:  10,
			SessionTimeoutHours: 24,
		},
		Upload: UploadConfig{
			MaxFileSize:  10 << 20, // 10MB
			AllowedTypes: []string{".pdf", ".txt"},
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "akadion")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "akadion")
}

// Load reads configuration from the JSON config file (if present) and
// AKADION_* environment variables, on top of built-in defaults.
// The Gemini API key is a secret and can only come from the environment.
func Load() (Config, error) {
	return loadWith(ConfigFilePath())
}

func loadWith(configPath string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, configPath); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. " +
			"Set it via environment variable AKADION_GEMINI_API_KEY")
	}

	return cfg, nil
}

// ConfigFilePath returns the JSON config file location: $AKADION_CONFIG if
// set, otherwise $XDG_CONFIG_HOME/akadion/config.json.
func ConfigFilePath() string {
	if p := os.Getenv("AKADION_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.json"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "akadion", "config.json")
}
