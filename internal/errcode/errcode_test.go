package errcode_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"ripline/internal/errcode"
)

func TestWrapCarriesCodeThroughWrapping(t *testing.T) {
	base := errcode.Wrap(errcode.ReadFailed, "reader", "read pack", io.ErrUnexpectedEOF)
	err := fmt.Errorf("rip: %w", base)

	if got := errcode.CodeOf(err); got != errcode.ReadFailed {
		t.Fatalf("CodeOf = %v, want read_failed", got)
	}
	if !errors.Is(err, errcode.ErrReadFailed) {
		t.Fatal("expected errors.Is to match sentinel")
	}
	if errors.Is(err, errcode.ErrOpenFailed) {
		t.Fatal("unexpected match against different code")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected cause to remain reachable")
	}
	msg := err.Error()
	for _, want := range []string{"read failed", "reader", "read pack"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestCodeOfUnclassified(t *testing.T) {
	if got := errcode.CodeOf(nil); got != errcode.None {
		t.Fatalf("nil -> %v", got)
	}
	if got := errcode.CodeOf(errors.New("plain")); got != errcode.None {
		t.Fatalf("plain -> %v", got)
	}
}

func TestCodeStrings(t *testing.T) {
	cases := map[errcode.Code]string{
		errcode.None:                "none",
		errcode.SyncLost:            "sync_lost",
		errcode.EncoderInitFailed:   "encoder_init_failed",
		errcode.EncoderEncodeFailed: "encoder_encode_failed",
		errcode.MuxWriteFailed:      "mux_write_failed",
		errcode.Code(99):            "unknown",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", int(code), got, want)
		}
	}
}
