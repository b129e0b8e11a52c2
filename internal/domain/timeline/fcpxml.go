package timeline

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// FCP7 XML (xmeml) export: a stateless transform over the Timeline artifact
// that NLEs like Premiere Pro import directly.

type xmeml struct {
	XMLName  xml.Name     `xml:"xmeml"`
	Version  string       `xml:"version,attr"`
	Sequence fcpxSequence `xml:"sequence"`
}

type fcpxSequence struct {
	ID       string       `xml:"id,attr"`
	Name     string       `xml:"name"`
	Duration int          `xml:"duration"`
	Rate     fcpxRate     `xml:"rate"`
	Timecode fcpxTimecode `xml:"timecode"`
	Media    fcpxMedia    `xml:"media"`
}

type fcpxRate struct {
	Timebase int    `xml:"timebase"`
	NTSC     string `xml:"ntsc"`
}

type fcpxTimecode struct {
	Rate          fcpxRate `xml:"rate"`
	String        string   `xml:"string"`
	Frame         int      `xml:"frame"`
	DisplayFormat string   `xml:"displayformat"`
}

type fcpxMedia struct {
	Video fcpxVideo `xml:"video"`
}

type fcpxVideo struct {
	Format fcpxFormat     `xml:"format"`
	Track  []fcpxClipItem `xml:"track>clipitem"`
}

type fcpxFormat struct {
	SampleCharacteristics fcpxSampleCharacteristics `xml:"samplecharacteristics"`
}

type fcpxSampleCharacteristics struct {
	Rate             fcpxRate `xml:"rate"`
	Width            int      `xml:"width"`
	Height           int      `xml:"height"`
	PixelAspectRatio string   `xml:"pixelaspectratio"`
	FieldDominance   string   `xml:"fielddominance"`
	ColorDepth       int      `xml:"colordepth"`
}

type fcpxClipItem struct {
	ID       string   `xml:"id,attr"`
	Name     string   `xml:"name"`
	Duration int      `xml:"duration"`
	Start    int      `xml:"start"`
	End      int      `xml:"end"`
	In       int      `xml:"in"`
	Out      int      `xml:"out"`
	File     fcpxFile `xml:"file"`
}

type fcpxFile struct {
	ID       string   `xml:"id,attr"`
	PathURL  string   `xml:"pathurl"`
	Duration int      `xml:"duration"`
	Rate     fcpxRate `xml:"rate"`
}

// WriteFCP7XML writes the timeline as an FCP7 interchange sequence.
func WriteFCP7XML(t types.Timeline, path string) error {
	fps := t.FPS
	if fps <= 0 {
		fps = 25
	}
	rate := fcpxRate{Timebase: fps, NTSC: "FALSE"}

	items := make([]fcpxClipItem, len(t.Clips))
	cursor := 0
	for i, c := range t.Clips {
		durFrames := int(c.Duration() * float64(fps))
		items[i] = fcpxClipItem{
			ID:       fmt.Sprintf("clipitem-%d", i+1),
			Name:     filepath.Base(c.Src),
			Duration: durFrames,
			Start:    cursor,
			End:      cursor + durFrames,
			In:       int(float64(c.In) * float64(fps)),
			Out:      int(float64(c.Out) * float64(fps)),
			File: fcpxFile{
				ID:       fmt.Sprintf("file-%d", i+1),
				PathURL:  "file://" + (&url.URL{Path: c.Src}).EscapedPath(),
				Duration: durFrames,
				Rate:     rate,
			},
		}
		cursor += durFrames
	}

	doc := xmeml{
		Version: "5",
		Sequence: fcpxSequence{
			ID:       "sequence-1",
			Name:     "ClipSense Bar Detection Sequence",
			Duration: t.TargetSeconds * fps,
			Rate:     rate,
			Timecode: fcpxTimecode{
				Rate:          rate,
				String:        "01:00:00:00",
				Frame:         0,
				DisplayFormat: "NDF",
			},
			Media: fcpxMedia{
				Video: fcpxVideo{
					Format: fcpxFormat{
						SampleCharacteristics: fcpxSampleCharacteristics{
							Rate:             rate,
							Width:            1280,
							Height:           720,
							PixelAspectRatio: "square",
							FieldDominance:   "none",
							ColorDepth:       24,
						},
					},
					Track: items,
				},
			},
		},
	}

	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fcp7 xml: %w", err)
	}
	out := append([]byte(xml.Header), b...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write fcp7 xml: %w", err)
	}
	return nil
}
