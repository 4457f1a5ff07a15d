package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config gathers every tunable the agent reads from the environment.
// Values are read once at startup; nothing re-reads the environment later.
type Config struct {
	// LiveKit connection
	LiveKitURL    string
	APIKey        string
	APISecret     string
	RoomName      string
	AgentIdentity string

	// Collaborator services
	STTURL    string
	OllamaURL string
	LLMModel  string
	TTSURL    string
	WebAPIURL string

	// Language tag sent to STT and TTS ("tr" in the original deployment).
	Language string

	// Audio format of the internal pipeline.
	SampleRate int
	Channels   int
	ChunkMs    int

	// VAD tuning
	VADLevel      int
	SilenceChunks int

	// Playback track format
	PlaybackSampleRate int

	// Filesystem
	SharedAudioDir string
	TempDir        string
	DebugDir       string
	CooldownPath   string

	CooldownSeconds int

	// Per-stage timeouts
	STTTimeout    time.Duration
	LLMTimeout    time.Duration
	TTSTimeout    time.Duration
	NotifyTimeout time.Duration
	DataTimeout   time.Duration
}

// Load reads configuration from the environment, applying deployment
// defaults for everything optional. It does not validate; call Validate.
func Load() *Config {
	return &Config{
		LiveKitURL:    getEnv("LIVEKIT_URL", ""),
		APIKey:        getEnv("LIVEKIT_API_KEY", ""),
		APISecret:     getEnv("LIVEKIT_API_SECRET", ""),
		RoomName:      getEnv("ROOM_NAME", ""),
		AgentIdentity: getEnv("AGENT_IDENTITY", "agent-assistant"),

		STTURL:    getEnv("STT_URL", "http://stt-service:8030/transcribe"),
		OllamaURL: getEnv("OLLAMA_URL", "http://host.docker.internal:11434/api/generate"),
		LLMModel:  getEnv("LLM_MODEL", "llama3"),
		TTSURL:    getEnv("TTS_URL", "http://host.docker.internal:8020/tts"),
		WebAPIURL: getEnv("WEB_API_URL", "http://web-ui:3000/api/agent-message"),

		Language: getEnv("AGENT_LANGUAGE", "tr"),

		SampleRate: getEnvInt("AUDIO_SAMPLE_RATE", 16000),
		Channels:   getEnvInt("AUDIO_CHANNELS", 1),
		ChunkMs:    getEnvInt("AUDIO_CHUNK_MS", 30),

		VADLevel:      getEnvInt("VAD_LEVEL", 3),
		SilenceChunks: getEnvInt("VAD_SILENCE_CHUNKS", 17),

		PlaybackSampleRate: getEnvInt("PLAYBACK_SAMPLE_RATE", 24000),

		SharedAudioDir: getEnv("SHARED_AUDIO_DIR", "/app/ses"),
		TempDir:        getEnv("AGENT_TEMP_DIR", os.TempDir()),
		DebugDir:       getEnv("AGENT_DEBUG_DIR", ""),
		CooldownPath:   getEnv("GREETING_COOLDOWN_PATH", "/tmp/greeting_cooldown.json"),

		CooldownSeconds: getEnvInt("GREETING_COOLDOWN_SECONDS", 30),

		STTTimeout:    getEnvDuration("STT_TIMEOUT", 60*time.Second),
		LLMTimeout:    getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		TTSTimeout:    getEnvDuration("TTS_TIMEOUT", 180*time.Second),
		NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
		DataTimeout:   getEnvDuration("DATA_PUBLISH_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the fields that have no sensible default.
func (c *Config) Validate() error {
	if c.LiveKitURL == "" {
		return fmt.Errorf("LIVEKIT_URL is required")
	}
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if c.RoomName == "" {
		return fmt.Errorf("ROOM_NAME is required")
	}
	if c.SampleRate <= 0 || c.Channels <= 0 || c.ChunkMs <= 0 {
		return fmt.Errorf("invalid audio format: rate=%d channels=%d chunk_ms=%d",
			c.SampleRate, c.Channels, c.ChunkMs)
	}
	if c.VADLevel < 0 || c.VADLevel > 3 {
		return fmt.Errorf("VAD_LEVEL must be 0..3, got %d", c.VADLevel)
	}
	if c.SilenceChunks <= 0 {
		return fmt.Errorf("VAD_SILENCE_CHUNKS must be positive, got %d", c.SilenceChunks)
	}
	return nil
}

// ChunkBytes is the size of one classifier chunk in bytes
// (16-bit samples, so 2 bytes per sample per channel).
func (c *Config) ChunkBytes() int {
	return c.SampleRate * c.ChunkMs / 1000 * c.Channels * 2
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
