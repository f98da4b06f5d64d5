package config

import "time"

// SpeechConfig configures the voice synthesis collaborator.  An empty
// APIKey disables synthesis; the feed then sends updates without audio.
type SpeechConfig struct {
    URL      string
    APIKey   string
    Lang     string
    Voice    string
    Speed    float64
    Format   string
    Timeout  time.Duration
    RatePerS float64
    Burst    int
}

// Enabled reports whether synthesis requests should be made at all.
func (c SpeechConfig) Enabled() bool { return c.URL != "" && c.APIKey != "" }

func LoadSpeechConfig() SpeechConfig {
    return SpeechConfig{
        URL:      envStr("SPEECH_URL", "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"),
        APIKey:   envStr("SPEECH_API_KEY", ""),
        Lang:     envStr("SPEECH_LANG", "ru-RU"),
        Voice:    envStr("SPEECH_VOICE", "zahar"),
        Speed:    envFloat("SPEECH_SPEED", 0.9),
        Format:   envStr("SPEECH_FORMAT", "mp3"),
        Timeout:  envDur("SPEECH_TIMEOUT", 10*time.Second),
        RatePerS: envFloat("SPEECH_RATE_PER_SEC", 5),
        Burst:    envInt("SPEECH_BURST", 5),
    }
}
