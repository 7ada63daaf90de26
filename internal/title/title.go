package title

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	lang "ripline/internal/language"
)

// AspectFactor scales display aspect ratios: 4:3 is 4*AspectFactor/3.
const AspectFactor = 432000

// Common aspect values.
const (
	Aspect4x3  = 4 * AspectFactor / 3
	Aspect16x9 = 16 * AspectFactor / 9
)

// Stream ids used by DVD program streams.
const (
	VideoStreamID = 0xE0
	// PrivateStream1 carries AC-3 sub-streams 0x80..0x87 folded into bits 8-15.
	PrivateStream1 = 0xBD
)

// AC3StreamID returns the folded stream id for AC-3 sub-stream n (0..7).
func AC3StreamID(n int) int {
	return PrivateStream1 | (0x80+n)<<8
}

// Crop holds edge crops in pixels.
type Crop struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// Audio describes one audio track of a title.
type Audio struct {
	// ID is the folded source stream id.
	ID       int
	Language string

	InSampleRate  int
	OutSampleRate int
	InBitrate     int
	OutBitrate    int
	Channels      int
	Codec         AudioCodec

	// StartDelay is how late the track starts relative to video.
	StartDelay time.Duration
}

// LanguageName renders the track language.
func (a Audio) LanguageName() string {
	return lang.DisplayName(a.Language)
}

// Label is a short track description for listings.
func (a Audio) Label() string {
	return fmt.Sprintf("%s (0x%x)", a.LanguageName(), a.ID)
}

// Title is a source title plus the encode settings applied to it.
type Title struct {
	Device string
	Index  int
	// Source is the file the reader opens.
	Source string
	// Length is the source size in bytes.
	Length   int64
	Duration time.Duration

	InWidth      int
	InHeight     int
	Crop         Crop
	OutWidth     int
	OutHeight    int
	OutWidthMax  int
	OutHeightMax int
	// Aspect is the display aspect times AspectFactor.
	Aspect int
	// Rate/RateBase is the frame rate in frames per second.
	Rate     int
	RateBase int

	VideoCodec VideoCodec
	Container  Container
	// Bitrate is the video bitrate in kbit/s.
	Bitrate int
	TwoPass bool

	Audios []Audio
	Output string
}

// DefaultGeometry fills the DVD defaults used when a probe cannot determine
// geometry: 720x576 at 25 fps with 4:3 aspect.
func (t *Title) DefaultGeometry() {
	if t.InWidth == 0 || t.InHeight == 0 {
		t.InWidth, t.InHeight = 720, 576
	}
	if t.Aspect == 0 {
		t.Aspect = Aspect4x3
	}
	if t.Rate == 0 || t.RateBase == 0 {
		t.Rate, t.RateBase = 25, 1
	}
	if t.OutWidthMax == 0 {
		t.OutWidthMax = t.InWidth
	}
	if t.OutHeightMax == 0 {
		t.OutHeightMax = t.InHeight
	}
	if t.OutWidth == 0 {
		t.OutWidth = t.OutWidthMax
	}
}

// FrameRate returns Rate/RateBase as a float.
func (t *Title) FrameRate() float64 {
	if t.RateBase == 0 {
		return 0
	}
	return float64(t.Rate) / float64(t.RateBase)
}

// FixPictureSettings makes crops even, clamps the output width and derives an
// output height (multiple of 16) that preserves the display aspect. When the
// height exceeds its maximum the width is derived from the height instead.
func (t *Title) FixPictureSettings() {
	t.Crop.Top = even(t.Crop.Top)
	t.Crop.Bottom = even(t.Crop.Bottom)
	t.Crop.Left = even(t.Crop.Left)
	t.Crop.Right = even(t.Crop.Right)

	t.OutWidth = clamp(t.OutWidth, 16, t.OutWidthMax)

	cropW := uint64(t.InWidth - t.Crop.Left - t.Crop.Right)
	cropH := uint64(t.InHeight - t.Crop.Top - t.Crop.Bottom)
	if cropW == 0 || cropH == 0 || t.Aspect <= 0 || t.InWidth <= 0 || t.InHeight <= 0 {
		return
	}

	t.OutHeight = multiple16(uint64(t.OutWidth) * uint64(t.InWidth) * cropH * AspectFactor /
		(uint64(t.InHeight) * cropW * uint64(t.Aspect)))
	if t.OutHeight < 16 {
		t.OutHeight = 16
	}

	if t.OutHeightMax > 0 && t.OutHeight > t.OutHeightMax {
		t.OutHeight = t.OutHeightMax
		t.OutWidth = multiple16(uint64(t.OutHeight) * uint64(t.InHeight) * cropW * uint64(t.Aspect) /
			(uint64(t.InWidth) * cropH * AspectFactor))
		t.OutWidth = clamp(t.OutWidth, 16, t.OutWidthMax)
	}
}

// Validate checks the settings a rip depends on.
func (t *Title) Validate() error {
	if strings.TrimSpace(t.Source) == "" {
		return errors.New("title has no source")
	}
	if strings.TrimSpace(t.Output) == "" {
		return errors.New("output path is required")
	}
	if len(t.Audios) > 2 {
		return fmt.Errorf("at most two audio tracks are supported, got %d", len(t.Audios))
	}
	if t.Bitrate <= 0 {
		return errors.New("video bitrate must be positive")
	}
	if t.Rate <= 0 || t.RateBase <= 0 {
		return errors.New("frame rate is unknown")
	}
	if _, ok := videoNames[t.VideoCodec]; !ok {
		return fmt.Errorf("unknown video codec %s", t.VideoCodec)
	}
	for _, a := range t.Audios {
		if err := CheckCompatible(t.Container, t.VideoCodec, a.Codec); err != nil {
			return err
		}
		if a.OutSampleRate <= 0 || a.OutBitrate <= 0 {
			return fmt.Errorf("audio track 0x%x needs sample rate and bitrate", a.ID)
		}
	}
	return nil
}

// Name renders a display name from the source file name.
func (t *Title) Name() string {
	base := strings.TrimSuffix(filepath.Base(t.Source), filepath.Ext(t.Source))
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return fmt.Sprintf("Title %d", t.Index)
	}
	return cases.Title(language.Und).String(strings.ToLower(base))
}

// Summary is a one line description for listings.
func (t *Title) Summary() string {
	langs := make([]string, 0, len(t.Audios))
	for _, a := range t.Audios {
		langs = append(langs, a.LanguageName())
	}
	audio := "no audio"
	if len(langs) > 0 {
		audio = strings.Join(langs, ", ")
	}
	return fmt.Sprintf("%d: %s, %dx%d, %.3f fps, %s", t.Index, t.Name(), t.InWidth, t.InHeight, t.FrameRate(), audio)
}

func even(v int) int {
	if v&1 != 0 {
		return v + 1
	}
	return v
}

func multiple16(v uint64) int {
	return int(16 * ((v + 8) / 16))
}

func clamp(v, lo, hi int) int {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
