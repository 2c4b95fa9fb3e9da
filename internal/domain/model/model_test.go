package model_test

import (
	"testing"
	"time"

	model "github.com/okian/videosync/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestClockConfig(t *testing.T) {
	convey.Convey("Given a 30 kHz device clock", t, func() {
		origin := time.Date(2024, 4, 16, 22, 7, 32, 403000000, time.UTC)
		clock := model.ClockConfig{Origin: origin, Resolution: 30000}

		convey.Convey("When converting a timestamp", func() {
			wall := clock.WallClock(37347215)

			convey.Convey("Then it should add ticks/resolution seconds to the origin", func() {
				// 37347215 / 30000 s = 1244.9071666.. s
				convey.So(wall.Sub(origin), convey.ShouldEqual, 1244*time.Second+907166666*time.Nanosecond)
			})
		})

		convey.Convey("When converting a very large timestamp", func() {
			ts := int64(1) << 40
			convey.So(clock.Offset(ts), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When the resolution is not positive", func() {
			bad := model.ClockConfig{Origin: origin}
			convey.So(bad.Validate(), convey.ShouldEqual, model.ErrInvalidResolution)
			convey.So(bad.WallClock(100), convey.ShouldEqual, origin)
			convey.So(clock.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestSerialRange(t *testing.T) {
	convey.Convey("Given serial ranges", t, func() {
		a := model.SerialRange{From: 100, To: 200}

		convey.So(a.Contains(100), convey.ShouldBeTrue)
		convey.So(a.Contains(200), convey.ShouldBeTrue)
		convey.So(a.Contains(201), convey.ShouldBeFalse)
		convey.So(a.Overlaps(model.SerialRange{From: 200, To: 300}), convey.ShouldBeTrue)
		convey.So(a.Overlaps(model.SerialRange{From: 201, To: 300}), convey.ShouldBeFalse)
		convey.So(model.SerialRange{From: 2, To: 1}.Empty(), convey.ShouldBeTrue)
	})
}

func TestAnomalyKind(t *testing.T) {
	convey.Convey("Given anomaly kinds", t, func() {
		convey.So(model.TypeI.String(), convey.ShouldEqual, "type_i")
		convey.So(model.TypeIV.String(), convey.ShouldEqual, "type_iv")
		convey.So(model.AnomalyKind(0).String(), convey.ShouldEqual, "unknown")

		text, err := model.TypeIII.MarshalText()
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(text), convey.ShouldEqual, "type_iii")

		var k model.AnomalyKind
		convey.So(k.UnmarshalText([]byte("type_ii")), convey.ShouldBeNil)
		convey.So(k, convey.ShouldEqual, model.TypeII)
		convey.So(k.UnmarshalText([]byte("type_v")), convey.ShouldNotBeNil)

		_, ok := model.ParseAnomalyKind("unknown")
		convey.So(ok, convey.ShouldBeFalse)
	})

	convey.Convey("Given synced records", t, func() {
		frame := int64(5)
		convey.So(model.SyncedRecord{FrameID: &frame}.HasFrame(), convey.ShouldBeTrue)
		convey.So(model.SyncedRecord{}.HasFrame(), convey.ShouldBeFalse)
		convey.So(model.SerialSample{ChunkSerial: model.UnknownSerial}.Unknown(), convey.ShouldBeTrue)
	})
}
