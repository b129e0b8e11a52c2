package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSeconds_FixedPrecisionJSON(t *testing.T) {
	cases := []struct {
		in   Seconds
		want string
	}{
		{0, "0.000"},
		{1.3, "1.300"},
		{2.3211, "2.321"},
		{2.32149999, "2.321"},
		{2.3215001, "2.322"},
		{59.9999, "60.000"},
	}
	for _, c := range cases {
		b, err := json.Marshal(c.in)
		if err != nil {
			t.Fatalf("marshal %v: %v", c.in, err)
		}
		if string(b) != c.want {
			t.Fatalf("marshal %v = %s, want %s", float64(c.in), b, c.want)
		}
	}
}

func TestSeconds_RoundTrip(t *testing.T) {
	var got Seconds
	if err := json.Unmarshal([]byte("2.321"), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != 2.321 {
		t.Fatalf("got %v, want 2.321", got)
	}
}

func TestTimeline_Accessors(t *testing.T) {
	tl := Timeline{
		Clips: []ClipSegment{
			{Src: "/a.mp4", In: 0, Out: 2},
			{Src: "/b.mp4", In: 1, Out: 2.5},
		},
		BarMarkers: []Seconds{1.3, 3.3},
	}
	if got := tl.TotalDuration(); got != 3.5 {
		t.Fatalf("TotalDuration = %v, want 3.5", got)
	}
	if got := tl.StartOffset(); got != 1.3 {
		t.Fatalf("StartOffset = %v, want 1.3", got)
	}
	if got := (Timeline{}).StartOffset(); got != 0 {
		t.Fatalf("empty StartOffset = %v, want 0", got)
	}
}

func TestEncodingError_Unwraps(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &EncodingError{Op: "ffmpeg concat", Output: "some stderr", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("EncodingError does not unwrap its cause")
	}
	var encErr *EncodingError
	if !errors.As(error(err), &encErr) || encErr.Op != "ffmpeg concat" {
		t.Fatalf("errors.As failed: %v", err)
	}
}
