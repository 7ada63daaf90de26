package config

const (
	defaultStateDir        = "~/.local/share/ripline"
	defaultLogDir          = "~/.local/share/ripline/logs"
	defaultOutputDir       = "~/Videos"
	defaultContainer       = "avi"
	defaultVideoCodec      = "mpeg4"
	defaultAudioCodec      = "mp3"
	defaultVideoBitrate    = 1024
	defaultAudioBitrate    = 128
	defaultAudioSampleRate = 44100
	defaultMaxWidth        = 720
	defaultMaxHeight       = 576
	defaultMinFreeMiB      = 1024
	defaultDemuxCapacity   = 1024
	defaultStageCapacity   = 1
	defaultOutputCapacity  = 1
	defaultIdleIntervalMs  = 10
	defaultDoneGraceMs     = 500
	defaultStatusMs        = 500
	defaultDevice          = "/dev/sr0"
	defaultProbePacks      = 4096
	defaultLogFormat       = "auto"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Rip: Rip{
			Container:       defaultContainer,
			VideoCodec:      defaultVideoCodec,
			AudioCodec:      defaultAudioCodec,
			VideoBitrate:    defaultVideoBitrate,
			AudioBitrate:    defaultAudioBitrate,
			AudioSampleRate: defaultAudioSampleRate,
			MaxWidth:        defaultMaxWidth,
			MaxHeight:       defaultMaxHeight,
			MinFreeMiB:      defaultMinFreeMiB,
		},
		Fifo: Fifo{
			DemuxCapacity:  defaultDemuxCapacity,
			StageCapacity:  defaultStageCapacity,
			OutputCapacity: defaultOutputCapacity,
		},
		Workflow: Workflow{
			IdleIntervalMs:   defaultIdleIntervalMs,
			DoneGraceMs:      defaultDoneGraceMs,
			StatusIntervalMs: defaultStatusMs,
		},
		Volume: Volume{
			Device:     defaultDevice,
			ProbePacks: defaultProbePacks,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled: true,
		},
	}
}
