package simulate

import (
	"math/rand/v2"

	"github.com/okian/videosync/internal/domain/decode"
	"github.com/okian/videosync/internal/domain/model"
)

// Segment is one camera log worth of rows.
type Segment struct {
	Start int // first serial index covered
	End   int // one past the last serial index covered
	Rows  []model.CameraLogRow
}

// Injected counts what the generator actually broke.
type Injected struct {
	DeviceTypeI   int
	DeviceTypeIII int
	DroppedGroups int
	CameraTypeI   int
	CameraTypeII  int
	CameraTypeIII int
	DroppedRows   int
}

// Dataset is a generated recording with its camera logs.
type Dataset struct {
	Config    Config
	Recording model.Recording
	Events    []model.RawDigitalEvent
	Analog    []model.AnalogSample
	Segments  []Segment
	Injected  Injected
}

type action uint8

const (
	keep action = iota
	zero
	drop
	reset // value carried in resetValue
)

// Serial returns the true chunk serial at index i.
func (d *Dataset) Serial(i int) int64 { return d.Config.StartSerial + int64(i) }

// SerialTimestamp returns the device timestamp of serial index i.
func (d *Dataset) SerialTimestamp(i int) int64 { return int64(i)*d.Config.TicksPerSerial + 1 }

// RawFrame returns the camera's raw frame id at serial index i.
func (d *Dataset) RawFrame(i int) uint16 { return d.Config.FrameStart + uint16(i) }

// Generate builds a dataset. The same config always yields the same dataset.
func Generate(cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	d := &Dataset{
		Config: cfg,
		Recording: model.Recording{
			ID:    cfg.Recording,
			Clock: model.ClockConfig{Origin: cfg.Origin, Resolution: cfg.Resolution},
		},
	}

	bounds := d.segmentBounds()
	slots := slotStarts(bounds)

	d.generateDevice(rng, shuffled(rng, slots))
	d.generateAnalog(rng)
	d.generateCamera(rng, shuffled(rng, slots), bounds)
	return d, nil
}

func (d *Dataset) segmentBounds() [][2]int {
	n, k := d.Config.Serials, d.Config.Segments
	size := n / k / slotSize * slotSize
	bounds := make([][2]int, k)
	for s := 0; s < k; s++ {
		bounds[s] = [2]int{s * size, (s + 1) * size}
	}
	bounds[k-1][1] = n
	return bounds
}

// slotStarts returns the first row of every slot that is not at a segment edge.
func slotStarts(bounds [][2]int) []int {
	var out []int
	for _, b := range bounds {
		count := (b[1] - b[0]) / slotSize
		for s := 1; s < count-1; s++ {
			out = append(out, b[0]+s*slotSize+4)
		}
	}
	return out
}

func shuffled(rng *rand.Rand, in []int) []int {
	out := append([]int(nil), in...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (d *Dataset) generateDevice(rng *rand.Rand, slots []int) {
	cfg := d.Config
	plan := make([]action, cfg.Serials)
	next := 0
	for ; next < cfg.DeviceTypeI; next++ {
		plan[slots[next]] = zero
		d.Injected.DeviceTypeI++
	}
	for k := 0; k < cfg.DeviceTypeIII; k++ {
		start := slots[next+k]
		g := 1 + rng.IntN(4)
		for r := start; r < start+g; r++ {
			plan[r] = drop
		}
		d.Injected.DeviceTypeIII++
		d.Injected.DroppedGroups += g
	}

	d.Events = make([]model.RawDigitalEvent, 0, cfg.Serials*(1+decode.GroupSize))
	for i := 0; i < cfg.Serials; i++ {
		t := d.SerialTimestamp(i) - 1
		d.Events = append(d.Events, model.RawDigitalEvent{Timestamp: t, Reason: model.ReasonExposure, RawValue: 1})
		if plan[i] == drop {
			continue
		}
		serial := d.Serial(i)
		if plan[i] == zero {
			serial = 0
		}
		for k, digit := range decode.Encode(serial) {
			d.Events = append(d.Events, model.RawDigitalEvent{
				Timestamp: t + 1 + int64(k),
				Reason:    model.ReasonSerialBit,
				RawValue:  digit,
			})
		}
	}
}

func (d *Dataset) generateAnalog(rng *rand.Rand) {
	total := int64(d.Config.Serials) * d.Config.TicksPerSerial
	d.Analog = make([]model.AnalogSample, total)
	for ts := int64(0); ts < total; ts++ {
		amp := (ts*37)%4001 - 2000 + int64(rng.IntN(11)) - 5
		d.Analog[ts] = model.AnalogSample{Timestamp: ts, Amplitude: int16(amp)}
	}
}

func (d *Dataset) generateCamera(rng *rand.Rand, slots []int, bounds [][2]int) {
	cfg := d.Config
	plan := make([]action, cfg.Serials)
	resetValue := make([]int64, cfg.Serials)

	next := 0
	for k := 0; k < cfg.CameraTypeI; k++ {
		plan[slots[next]] = zero
		next++
		d.Injected.CameraTypeI++
	}
	for k := 0; k < cfg.CameraTypeII; k++ {
		start := slots[next]
		next++
		top := 1 + rng.IntN(5)
		// 0, 1, ..., top, 0
		for v := 0; v <= top; v++ {
			plan[start+v] = reset
			resetValue[start+v] = int64(v)
		}
		plan[start+top+1] = reset
		d.Injected.CameraTypeII++
	}
	for k := 0; k < cfg.CameraTypeIII; k++ {
		start := slots[next]
		next++
		g := 1 + rng.IntN(8)
		for r := start; r < start+g; r++ {
			plan[r] = drop
		}
		d.Injected.CameraTypeIII++
		d.Injected.DroppedRows += g
	}

	for _, b := range bounds {
		seg := Segment{Start: b[0], End: b[1]}
		for i := b[0]; i < b[1]; i++ {
			row := model.CameraLogRow{ChunkSerial: d.Serial(i), FrameID: d.RawFrame(i)}
			switch plan[i] {
			case drop:
				continue
			case zero:
				row.ChunkSerial = 0
			case reset:
				row.ChunkSerial = resetValue[i]
			}
			seg.Rows = append(seg.Rows, row)
		}
		d.Segments = append(d.Segments, seg)
	}
}

// segmentOf returns the segment holding serial index i, or -1.
func (d *Dataset) segmentOf(i int) int {
	for k, s := range d.Segments {
		if i >= s.Start && i < s.End {
			return k
		}
	}
	return -1
}
