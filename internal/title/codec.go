package title

import (
	"fmt"
	"strings"
)

// VideoCodec selects the output video encoder.
type VideoCodec int

const (
	VideoMPEG4 VideoCodec = iota
	VideoXviD
	VideoH264
)

// AudioCodec selects the output audio encoder.
type AudioCodec int

const (
	AudioMP3 AudioCodec = iota
	AudioVorbis
	AudioAAC
)

// Container selects the output file format.
type Container int

const (
	ContainerAVI Container = iota
	ContainerMP4
	ContainerOGM
)

var (
	videoNames     = map[VideoCodec]string{VideoMPEG4: "mpeg4", VideoXviD: "xvid", VideoH264: "h264"}
	audioNames     = map[AudioCodec]string{AudioMP3: "mp3", AudioVorbis: "vorbis", AudioAAC: "aac"}
	containerNames = map[Container]string{ContainerAVI: "avi", ContainerMP4: "mp4", ContainerOGM: "ogm"}
)

func (v VideoCodec) String() string { return nameOr(videoNames[v], int(v)) }
func (a AudioCodec) String() string { return nameOr(audioNames[a], int(a)) }
func (c Container) String() string  { return nameOr(containerNames[c], int(c)) }

// Extension returns the file extension, including the dot.
func (c Container) Extension() string {
	return "." + c.String()
}

func nameOr(name string, value int) string {
	if name == "" {
		return fmt.Sprintf("unknown(%d)", value)
	}
	return name
}

// ParseVideoCodec parses a codec name. "divx" is accepted for MPEG-4.
func ParseVideoCodec(value string) (VideoCodec, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mpeg4", "divx", "ffmpeg":
		return VideoMPEG4, nil
	case "xvid":
		return VideoXviD, nil
	case "h264", "x264", "avc":
		return VideoH264, nil
	}
	return 0, fmt.Errorf("unsupported video codec %q", value)
}

// ParseAudioCodec parses an audio codec name.
func ParseAudioCodec(value string) (AudioCodec, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mp3", "lame":
		return AudioMP3, nil
	case "vorbis", "ogg":
		return AudioVorbis, nil
	case "aac", "faac":
		return AudioAAC, nil
	}
	return 0, fmt.Errorf("unsupported audio codec %q", value)
}

// ParseContainer parses a container name.
func ParseContainer(value string) (Container, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "avi":
		return ContainerAVI, nil
	case "mp4", "m4v":
		return ContainerMP4, nil
	case "ogm", "ogg":
		return ContainerOGM, nil
	}
	return 0, fmt.Errorf("unsupported container %q", value)
}

// CheckCompatible reports whether the codecs can be stored in the container.
func CheckCompatible(c Container, v VideoCodec, a AudioCodec) error {
	switch c {
	case ContainerAVI:
		if a != AudioMP3 {
			return fmt.Errorf("avi output supports mp3 audio only, got %s", a)
		}
	case ContainerOGM:
		if a != AudioMP3 && a != AudioVorbis {
			return fmt.Errorf("ogm output supports mp3 or vorbis audio, got %s", a)
		}
	case ContainerMP4:
		if a != AudioAAC && a != AudioMP3 {
			return fmt.Errorf("mp4 output supports aac or mp3 audio, got %s", a)
		}
	default:
		return fmt.Errorf("unknown container %s", c)
	}
	if _, ok := videoNames[v]; !ok {
		return fmt.Errorf("unknown video codec %s", v)
	}
	return nil
}
