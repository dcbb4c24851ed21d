// Package exifgps extracts GPS coordinates from the EXIF block of an
// uploaded image, normalized to signed decimal degrees.
package exifgps

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/big"

	"github.com/golang/geo/s2"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal digits kept on extracted coordinates.
const Precision = 15

// ErrNotImage is returned when the payload cannot be decoded as an image at
// all. This is distinct from a valid image that simply has no GPS data.
var ErrNotImage = errors.New("exifgps: payload is not a decodable image")

// Location is an extracted (latitude, longitude) pair.
type Location struct {
	Latitude  decimal.Decimal
	Longitude decimal.Decimal
}

// Extract reads the GPS block embedded in an image payload.
//
// It returns (nil, ErrNotImage) for a corrupt or non-image payload,
// (nil, nil) for a valid image without usable GPS data, and a Location
// otherwise. Callers treat a nil Location as (0, 0).
func Extract(data []byte) (*Location, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, ErrNotImage
	}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// A decodable image with no EXIF segment has no location.
		return nil, nil
	}
	lat, ok := dmsField(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if !ok {
		return nil, nil
	}
	lon, ok := dmsField(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if !ok {
		return nil, nil
	}
	latF, _ := lat.Float64()
	lonF, _ := lon.Float64()
	if !s2.LatLngFromDegrees(latF, lonF).IsValid() {
		// Garbage EXIF occasionally yields out-of-range angles; coerce to
		// zero like the not-a-number case rather than failing the upload.
		return &Location{}, nil
	}
	return &Location{Latitude: lat, Longitude: lon}, nil
}

func dmsField(x *exif.Exif, field, refField exif.FieldName) (decimal.Decimal, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return decimal.Decimal{}, false
	}
	refTag, err := x.Get(refField)
	if err != nil {
		return decimal.Decimal{}, false
	}
	ref, err := refTag.StringVal()
	if err != nil {
		return decimal.Decimal{}, false
	}
	dms := make([]*big.Rat, 3)
	for i := range dms {
		r, err := tag.Rat(i)
		if err != nil || r == nil {
			// Malformed rational (e.g. zero denominator) counts as zero.
			r = new(big.Rat)
		}
		dms[i] = r
	}
	return FromDMS(dms[0], dms[1], dms[2], ref), true
}

// FromDMS converts a degrees/minutes/seconds triple plus a hemisphere
// reference to signed decimal degrees: deg + min/60 + sec/3600, negated
// when the reference is S or W.
func FromDMS(deg, min, sec *big.Rat, ref string) decimal.Decimal {
	v := new(big.Rat).Set(deg)
	v.Add(v, new(big.Rat).Quo(min, big.NewRat(60, 1)))
	v.Add(v, new(big.Rat).Quo(sec, big.NewRat(3600, 1)))
	if ref == "S" || ref == "W" {
		v.Neg(v)
	}
	return decimal.NewFromBigRat(v, Precision)
}
