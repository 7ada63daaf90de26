package title_test

import (
	"strings"
	"testing"

	"ripline/internal/title"
)

func TestFixPictureSettings(t *testing.T) {
	tests := []struct {
		name       string
		in         title.Title
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "pal 4:3",
			in:         title.Title{InWidth: 720, InHeight: 576, OutWidth: 640, OutWidthMax: 720, OutHeightMax: 576, Aspect: title.Aspect4x3},
			wantWidth:  640,
			wantHeight: 480,
		},
		{
			name:       "pal 16:9 rounds to multiple of 16",
			in:         title.Title{InWidth: 720, InHeight: 576, OutWidth: 640, OutWidthMax: 720, OutHeightMax: 576, Aspect: title.Aspect16x9},
			wantWidth:  640,
			wantHeight: 368,
		},
		{
			name:       "ntsc height capped derives width",
			in:         title.Title{InWidth: 720, InHeight: 480, OutWidth: 720, OutWidthMax: 720, OutHeightMax: 480, Aspect: title.Aspect4x3},
			wantWidth:  640,
			wantHeight: 480,
		},
		{
			name:       "width clamped to minimum",
			in:         title.Title{InWidth: 720, InHeight: 576, OutWidth: 2, OutWidthMax: 720, OutHeightMax: 576, Aspect: title.Aspect4x3},
			wantWidth:  16,
			wantHeight: 16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := tt.in
			ti.FixPictureSettings()
			if ti.OutWidth != tt.wantWidth || ti.OutHeight != tt.wantHeight {
				t.Fatalf("got %dx%d, want %dx%d", ti.OutWidth, ti.OutHeight, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestFixPictureSettingsEvensCrop(t *testing.T) {
	ti := title.Title{InWidth: 720, InHeight: 576, OutWidth: 640, OutWidthMax: 720, OutHeightMax: 576, Aspect: title.Aspect4x3,
		Crop: title.Crop{Top: 3, Bottom: 4, Left: 1, Right: 0}}
	ti.FixPictureSettings()
	if ti.Crop != (title.Crop{Top: 4, Bottom: 4, Left: 2, Right: 0}) {
		t.Fatalf("crop = %+v", ti.Crop)
	}
}

func TestParseAndCompatibility(t *testing.T) {
	c, err := title.ParseContainer("OGM")
	if err != nil || c != title.ContainerOGM {
		t.Fatalf("ParseContainer = %v, %v", c, err)
	}
	v, err := title.ParseVideoCodec("divx")
	if err != nil || v != title.VideoMPEG4 {
		t.Fatalf("ParseVideoCodec = %v, %v", v, err)
	}
	if _, err := title.ParseAudioCodec("flac"); err == nil {
		t.Fatal("expected error for unsupported audio codec")
	}

	cases := []struct {
		container title.Container
		audio     title.AudioCodec
		ok        bool
	}{
		{title.ContainerAVI, title.AudioMP3, true},
		{title.ContainerAVI, title.AudioVorbis, false},
		{title.ContainerAVI, title.AudioAAC, false},
		{title.ContainerOGM, title.AudioVorbis, true},
		{title.ContainerOGM, title.AudioAAC, false},
		{title.ContainerMP4, title.AudioAAC, true},
		{title.ContainerMP4, title.AudioVorbis, false},
	}
	for _, tc := range cases {
		err := title.CheckCompatible(tc.container, title.VideoXviD, tc.audio)
		if (err == nil) != tc.ok {
			t.Fatalf("%s/%s: err=%v want ok=%v", tc.container, tc.audio, err, tc.ok)
		}
	}
}

func TestValidate(t *testing.T) {
	base := title.Title{
		Source: "/media/VIDEO_TS/VTS_01_1.VOB", Output: "/tmp/out.avi",
		Bitrate: 1024, Rate: 25, RateBase: 1, Container: title.ContainerAVI,
		Audios: []title.Audio{{ID: title.AC3StreamID(0), OutSampleRate: 44100, OutBitrate: 128, Codec: title.AudioMP3}},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	three := base
	three.Audios = append(append([]title.Audio(nil), base.Audios...), base.Audios[0], base.Audios[0])
	if err := three.Validate(); err == nil || !strings.Contains(err.Error(), "two audio") {
		t.Fatalf("expected audio count error, got %v", err)
	}

	noOut := base
	noOut.Output = ""
	if err := noOut.Validate(); err == nil {
		t.Fatal("expected error for missing output")
	}
}

func TestAC3StreamID(t *testing.T) {
	if got := title.AC3StreamID(0); got != 0x80BD {
		t.Fatalf("AC3StreamID(0) = %#x", got)
	}
	if got := title.AC3StreamID(2); got != 0x82BD {
		t.Fatalf("AC3StreamID(2) = %#x", got)
	}
}

func TestNameAndSummary(t *testing.T) {
	ti := title.Title{Index: 1, Source: "/dvd/MY_GREAT_MOVIE.vob", InWidth: 720, InHeight: 576, Rate: 25, RateBase: 1,
		Audios: []title.Audio{{Language: "fre"}}}
	if ti.Name() != "My Great Movie" {
		t.Fatalf("Name() = %q", ti.Name())
	}
	if s := ti.Summary(); !strings.Contains(s, "French") || !strings.Contains(s, "720x576") {
		t.Fatalf("Summary() = %q", s)
	}
}
