package rollover

import (
	"errors"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestUnwrap(t *testing.T) {
	Convey("Given a 16-bit frame counter corrector", t, func() {
		c, err := New(DefaultModulus)
		So(err, ShouldBeNil)

		Convey("When the counter wraps once", func() {
			values, err := c.Values([]uint16{65534, 65535, 0, 1})

			Convey("Then the sequence should continue past the modulus", func() {
				So(err, ShouldBeNil)
				So(values, ShouldResemble, []int64{65534, 65535, 65536, 65537})
			})
		})

		Convey("When values repeat", func() {
			samples, rollovers, err := c.Unwrap([]uint16{7, 7, 8})

			Convey("Then equal values should not count as a rollover", func() {
				So(err, ShouldBeNil)
				So(rollovers, ShouldEqual, 0)
				So(samples[1].ReconstructedFrameID, ShouldEqual, 7)
				So(samples[1].RawFrameID, ShouldEqual, 7)
			})
		})

		Convey("When the counter wraps several times", func() {
			_, rollovers, err := c.Unwrap([]uint16{65000, 10, 64000, 5, 6})
			So(err, ShouldBeNil)
			So(rollovers, ShouldEqual, 2)
		})

		Convey("When the input is empty", func() {
			values, err := c.Values(nil)
			So(err, ShouldBeNil)
			So(values, ShouldBeEmpty)
		})

		Convey("When random counters are unwrapped", func() {
			rng := rand.New(rand.NewSource(7))
			raw := make([]uint16, 500)
			for i := range raw {
				raw[i] = uint16(rng.Intn(65536))
			}
			values, err := c.Values(raw)

			Convey("Then the result should be non-decreasing and reduce to the raw values", func() {
				So(err, ShouldBeNil)
				for i := range values {
					So(values[i]%c.Period(), ShouldEqual, int64(raw[i]))
					if i > 0 {
						So(values[i], ShouldBeGreaterThanOrEqualTo, values[i-1])
					}
				}
			})
		})
	})

	Convey("Given a small modulus", t, func() {
		c, err := New(9)
		So(err, ShouldBeNil)

		Convey("When a value exceeds it", func() {
			_, err := c.Values([]uint16{3, 10})
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		})
	})

	Convey("Given an invalid modulus", t, func() {
		_, err := New(0)
		So(errors.Is(err, ErrInvalidModulus), ShouldBeTrue)
	})
}
