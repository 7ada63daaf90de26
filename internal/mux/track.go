package mux

import (
	"fmt"

	"ripline/internal/fifo"
	"ripline/internal/title"
)

// Kind is the media type of a track.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}

// Info describes one output track to a container.
type Info struct {
	Kind       Kind
	VideoCodec title.VideoCodec
	AudioCodec title.AudioCodec

	Width    int
	Height   int
	Rate     int
	RateBase int

	SampleRate int
	// Bitrate in kbit/s.
	Bitrate  int
	Channels int
	Language string

	// Config carries codec setup bytes (esds/avcC payload) when known.
	Config []byte
}

// Track binds a fifo of encoded buffers to its Info.
type Track struct {
	Info Info
	Fifo *fifo.Fifo

	frames int64
	bytes  int64
}

// Frames returns the number of buffers written for the track.
func (t *Track) Frames() int64 { return t.frames }

// Bytes returns the payload bytes written for the track.
func (t *Track) Bytes() int64 { return t.bytes }

// VideoInfo builds the Info of a title's video track.
func VideoInfo(t *title.Title) Info {
	return Info{
		Kind:       KindVideo,
		VideoCodec: t.VideoCodec,
		Width:      t.OutWidth,
		Height:     t.OutHeight,
		Rate:       t.Rate,
		RateBase:   t.RateBase,
		Bitrate:    t.Bitrate,
	}
}

// AudioInfo builds the Info of an audio track.
func AudioInfo(a title.Audio) Info {
	channels := a.Channels
	if channels <= 0 {
		channels = 2
	}
	return Info{
		Kind:       KindAudio,
		AudioCodec: a.Codec,
		SampleRate: a.OutSampleRate,
		Bitrate:    a.OutBitrate,
		Channels:   channels,
		Language:   a.Language,
	}
}

// ValidateTracks checks the track layout every container expects: video
// first, then at most two audio tracks.
func ValidateTracks(tracks []Info) error {
	if len(tracks) == 0 || tracks[0].Kind != KindVideo {
		return fmt.Errorf("first track must be video")
	}
	if len(tracks) > 3 {
		return fmt.Errorf("at most 2 audio tracks supported, got %d", len(tracks)-1)
	}
	for i, t := range tracks[1:] {
		if t.Kind != KindAudio {
			return fmt.Errorf("track %d must be audio", i+1)
		}
		if t.SampleRate <= 0 {
			return fmt.Errorf("track %d: sample rate must be positive", i+1)
		}
	}
	if tracks[0].Rate <= 0 || tracks[0].RateBase <= 0 {
		return fmt.Errorf("video frame rate must be positive")
	}
	return nil
}
