package codec

import (
	"fmt"
	"sync"

	"ripline/internal/title"
)

// TransformerFactory builds a decoder or scaler for a title.
type TransformerFactory func(t *title.Title) (Transformer, error)

// VideoEncoderFactory builds a video encoder for a title.
type VideoEncoderFactory func(t *title.Title) (Encoder, error)

// AudioEncoderFactory builds an audio encoder for a track.
type AudioEncoderFactory func(a title.Audio) (Encoder, error)

// Registry maps codec choices to implementations.
type Registry struct {
	mu           sync.RWMutex
	videoDecoder TransformerFactory
	audioDecoder TransformerFactory
	scaler       TransformerFactory
	video        map[title.VideoCodec]VideoEncoderFactory
	audio        map[title.AudioCodec]AudioEncoderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		video: make(map[title.VideoCodec]VideoEncoderFactory),
		audio: make(map[title.AudioCodec]AudioEncoderFactory),
	}
}

// Default returns a registry with passthrough implementations for every
// codec.
func Default() *Registry {
	r := NewRegistry()
	r.SetVideoDecoder(func(*title.Title) (Transformer, error) { return Passthrough{}, nil })
	r.SetAudioDecoder(func(*title.Title) (Transformer, error) { return Passthrough{}, nil })
	r.SetScaler(func(*title.Title) (Transformer, error) { return Passthrough{}, nil })
	for _, v := range []title.VideoCodec{title.VideoMPEG4, title.VideoXviD, title.VideoH264} {
		r.RegisterVideo(v, func(t *title.Title) (Encoder, error) {
			return NewPassthroughVideo(DefaultGOP), nil
		})
	}
	for _, a := range []title.AudioCodec{title.AudioMP3, title.AudioAAC} {
		r.RegisterAudio(a, func(title.Audio) (Encoder, error) {
			return NewPassthroughAudio(false), nil
		})
	}
	r.RegisterAudio(title.AudioVorbis, func(title.Audio) (Encoder, error) {
		return NewPassthroughAudio(true), nil
	})
	return r
}

func (r *Registry) SetVideoDecoder(f TransformerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videoDecoder = f
}

func (r *Registry) SetAudioDecoder(f TransformerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioDecoder = f
}

func (r *Registry) SetScaler(f TransformerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scaler = f
}

func (r *Registry) RegisterVideo(c title.VideoCodec, f VideoEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video[c] = f
}

func (r *Registry) RegisterAudio(c title.AudioCodec, f AudioEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[c] = f
}

// VideoDecoder builds the video decoder.
func (r *Registry) VideoDecoder(t *title.Title) (Transformer, error) {
	r.mu.RLock()
	f := r.videoDecoder
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("no video decoder registered")
	}
	return f(t)
}

// AudioDecoder builds an audio decoder.
func (r *Registry) AudioDecoder(t *title.Title) (Transformer, error) {
	r.mu.RLock()
	f := r.audioDecoder
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("no audio decoder registered")
	}
	return f(t)
}

// Scaler builds the crop/resize filter.
func (r *Registry) Scaler(t *title.Title) (Transformer, error) {
	r.mu.RLock()
	f := r.scaler
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("no scaler registered")
	}
	return f(t)
}

// VideoEncoder builds the encoder selected by t.VideoCodec.
func (r *Registry) VideoEncoder(t *title.Title) (Encoder, error) {
	r.mu.RLock()
	f, ok := r.video[t.VideoCodec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no encoder registered for video codec %s", t.VideoCodec)
	}
	return f(t)
}

// AudioEncoder builds the encoder selected by a.Codec.
func (r *Registry) AudioEncoder(a title.Audio) (Encoder, error) {
	r.mu.RLock()
	f, ok := r.audio[a.Codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no encoder registered for audio codec %s", a.Codec)
	}
	return f(a)
}
