package exifgps

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"math/big"
	"testing"
)

const epsilon = 1e-12

func ratFromFloat(f float64) *big.Rat {
	return new(big.Rat).SetFloat64(f)
}

func TestFromDMS(t *testing.T) {
	testCases := []struct {
		name string
		deg  float64
		min  float64
		sec  float64
		ref  string
		want float64
	}{
		{"north latitude", 33, 43, 7.73472, "N", 33.7188152},
		{"west longitude", 112, 10, 29.60796, "W", -112.1748911},
		{"south latitude", 33, 51, 54.5148, "S", -33.865143},
		{"east longitude", 151, 12, 35.9964, "E", 151.209999},
		{"equator", 0, 0, 0, "N", 0},
		{"degrees only", 45, 0, 0, "N", 45},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromDMS(ratFromFloat(tc.deg), ratFromFloat(tc.min), ratFromFloat(tc.sec), tc.ref)
			gotF, _ := got.Float64()
			if math.Abs(gotF-tc.want) > epsilon {
				t.Errorf("FromDMS(%v, %v, %v, %q) = %v, want %v", tc.deg, tc.min, tc.sec, tc.ref, gotF, tc.want)
			}
		})
	}
}

func TestFromDMSRoundTrip(t *testing.T) {
	// Any decimal degree split into DMS must convert back within epsilon.
	values := []float64{0.000001, 12.345678, 89.999999, 179.5, 33.7188152}
	for _, v := range values {
		deg := math.Floor(v)
		rem := (v - deg) * 60
		min := math.Floor(rem)
		sec := (rem - min) * 60

		got := FromDMS(ratFromFloat(deg), ratFromFloat(min), ratFromFloat(sec), "N")
		gotF, _ := got.Float64()
		if math.Abs(gotF-v) > epsilon {
			t.Errorf("round trip of %v via DMS = %v", v, gotF)
		}

		neg := FromDMS(ratFromFloat(deg), ratFromFloat(min), ratFromFloat(sec), "W")
		negF, _ := neg.Float64()
		if math.Abs(negF+v) > epsilon {
			t.Errorf("round trip of -%v via DMS = %v", v, negF)
		}
	}
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestExtractNoGPSData(t *testing.T) {
	// A freshly encoded JPEG carries no EXIF segment, so there is nothing
	// to extract. That is not an error.
	loc, err := Extract(encodeJPEG(t))
	if err != nil {
		t.Fatalf("Extract() on plain JPEG returned error: %v", err)
	}
	if loc != nil {
		t.Errorf("Extract() on plain JPEG = %+v, want nil location", loc)
	}
}

func TestExtractNonJPEGImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	loc, err := Extract(buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() on PNG returned error: %v", err)
	}
	if loc != nil {
		t.Errorf("Extract() on PNG = %+v, want nil location", loc)
	}
}

func TestExtractNotAnImage(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("definitely not an image"),
		{0xff, 0xd8, 0x00},
	}
	for _, p := range payloads {
		if _, err := Extract(p); !errors.Is(err, ErrNotImage) {
			t.Errorf("Extract(%q) error = %v, want ErrNotImage", p, err)
		}
	}
}
