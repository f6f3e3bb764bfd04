package config

const (
	defaultDataDir          = "~/.local/share/podforge"
	defaultLogDir           = "~/.local/share/podforge/logs"
	defaultAPIBind          = "127.0.0.1:7410"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLLMBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel         = "google/gemini-3-flash-preview"
	defaultLLMReferer       = "https://github.com/podforge/podforge"
	defaultLLMTitle         = "Podforge"
	defaultLLMTimeout       = 120
	defaultTTSBaseURL       = "https://api.openai.com/v1/audio/speech"
	defaultTTSModel         = "tts-1"
	defaultTTSTimeout       = 60
	defaultTTSVoice         = "zh-CN-XiaoxiaoNeural"
	defaultFetchTimeout     = 30
	defaultFetchUserAgent   = "Podforge/0.1"
	defaultMinContentLength = 4
	defaultMaxTaskWorkers   = 3
	defaultMaxStepRetries   = 1
	defaultStepRetryDelay   = 3
	defaultMaxTaskRetries   = 1
	defaultTaskRetryDelay   = 5
	defaultSynthesisRetries = 3
	defaultTranslationBatch = 5
	defaultMinDialogueTurns = 4
	defaultTurnGapMillis    = 500
	defaultRSSPollMinutes   = 30
	defaultRSSBatchSize     = 5
	defaultRSSBatchPause    = 1
	defaultNotifyTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeout,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Model:          defaultTTSModel,
			TimeoutSeconds: defaultTTSTimeout,
			DefaultVoice:   defaultTTSVoice,
			Voices: map[string]string{
				"host_cn":  "zh-CN-XiaoxiaoNeural",
				"guest_cn": "zh-CN-YunxiaNeural",
				"host_en":  "en-US-JennyNeural",
				"guest_en": "en-US-ChristopherNeural",
			},
		},
		Fetch: Fetch{
			RequestTimeout:   defaultFetchTimeout,
			UserAgent:        defaultFetchUserAgent,
			MinContentLength: defaultMinContentLength,
		},
		Workflow: Workflow{
			MaxTaskWorkers:        defaultMaxTaskWorkers,
			MaxStepRetries:        defaultMaxStepRetries,
			StepRetryDelaySeconds: defaultStepRetryDelay,
			MaxTaskRetries:        defaultMaxTaskRetries,
			TaskRetryDelaySeconds: defaultTaskRetryDelay,
			AudioSynthesisRetries: defaultSynthesisRetries,
			TranslationBatchSize:  defaultTranslationBatch,
			MinDialogueTurns:      defaultMinDialogueTurns,
			TurnGapMillis:         defaultTurnGapMillis,
		},
		Media: Media{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		RSS: RSS{
			PollIntervalMinutes: defaultRSSPollMinutes,
			FetchBatchSize:      defaultRSSBatchSize,
			BatchPauseSeconds:   defaultRSSBatchPause,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
