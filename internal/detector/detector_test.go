package detector

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func TestFilter(t *testing.T) {
	dets := []Detection{
		FireDetection(),
		SmokeDetection(),
		OtherDetection(),
		{Class: ClassFire, Confidence: 0.3},
	}

	tests := []struct {
		name    string
		minConf float64
		want    []string
	}{
		{"default threshold", 0.5, []string{ClassFire, ClassSmoke}},
		{"strict threshold", 0.8, []string{ClassFire}},
		{"zero threshold keeps weak boxes", 0, []string{ClassFire, ClassSmoke, ClassFire}},
		{"threshold above all", 0.99, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(dets, tt.minConf)
			if len(got) != len(tt.want) {
				t.Fatalf("Filter() returned %d detections, want %d", len(got), len(tt.want))
			}
			for i, d := range got {
				if d.Class != tt.want[i] {
					t.Errorf("Filter()[%d].Class = %s, want %s", i, d.Class, tt.want[i])
				}
			}
		})
	}
}

func TestHazardPresent(t *testing.T) {
	if HazardPresent(nil) {
		t.Error("no detections should not be a hazard")
	}
	if HazardPresent([]Detection{OtherDetection()}) {
		t.Error("class other should not be a hazard")
	}
	if !HazardPresent([]Detection{OtherDetection(), SmokeDetection()}) {
		t.Error("smoke should be a hazard")
	}
}

func TestCountByClass(t *testing.T) {
	counts := CountByClass([]Detection{FireDetection(), FireDetection(), SmokeDetection()})
	if counts[ClassFire] != 2 || counts[ClassSmoke] != 1 {
		t.Errorf("CountByClass() = %v", counts)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Model = "models/fire.onnx"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid onnx", func(c *Config) {}, false},
		{"mock needs nothing", func(c *Config) { c.Backend = "mock"; c.Model = "" }, false},
		{"onnx without model", func(c *Config) { c.Model = "" }, true},
		{"onnx without classes", func(c *Config) { c.Classes = nil }, true},
		{"bad input size", func(c *Config) { c.InputSize = 0 }, true},
		{"confidence above one", func(c *Config) { c.Confidence = 1.5 }, true},
		{"negative min score", func(c *Config) { c.MinScore = -0.1 }, true},
		{"unknown backend", func(c *Config) { c.Backend = "tflite" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "mock"
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer d.Close()
	if _, ok := d.(*MockDetector); !ok {
		t.Errorf("New() = %T, want *MockDetector", d)
	}
}

func TestDecodeOutput_V8(t *testing.T) {
	classes := []string{ClassFire, ClassOther, ClassSmoke}
	n := 3
	// rows: cx, cy, w, h, fire, other, smoke; columns are candidates
	rows := [][]float32{
		{100, 300, 500},
		{100, 300, 500},
		{40, 20, 10},
		{40, 20, 10},
		{0.90, 0.05, 0.10},
		{0.01, 0.10, 0.05},
		{0.02, 0.60, 0.15},
	}
	data := make([]float32, 0, len(rows)*n)
	for _, r := range rows {
		data = append(data, r...)
	}

	dets, nmsFree, err := decodeOutput(data, []int{1, 7, n}, classes, 2, 1, 0.25)
	if err != nil {
		t.Fatalf("decodeOutput() error = %v", err)
	}
	if nmsFree {
		t.Error("v8 output still needs NMS")
	}
	if len(dets) != 2 {
		t.Fatalf("decodeOutput() returned %d detections, want 2", len(dets))
	}
	if dets[0].Class != ClassFire || dets[0].Box != image.Rect(160, 80, 240, 120) {
		t.Errorf("first detection = %+v", dets[0])
	}
	if dets[1].Class != ClassSmoke || dets[1].Confidence < 0.59 {
		t.Errorf("second detection = %+v", dets[1])
	}
}

func TestDecodeOutput_V10(t *testing.T) {
	classes := []string{ClassFire, ClassOther, ClassSmoke}
	data := []float32{
		10, 20, 110, 220, 0.8, 2,
		0, 0, 5, 5, 0.1, 0,
		0, 0, 5, 5, 0.9, 7,
	}

	dets, nmsFree, err := decodeOutput(data, []int{1, 3, 6}, classes, 1, 0.5, 0.25)
	if err != nil {
		t.Fatalf("decodeOutput() error = %v", err)
	}
	if !nmsFree {
		t.Error("v10 output is NMS-free")
	}
	if len(dets) != 1 {
		t.Fatalf("decodeOutput() returned %d detections, want 1", len(dets))
	}
	if dets[0].Class != ClassSmoke || dets[0].Box != image.Rect(10, 10, 110, 110) {
		t.Errorf("detection = %+v", dets[0])
	}
}

func TestDecodeOutput_BadShape(t *testing.T) {
	classes := []string{ClassFire, ClassSmoke}

	if _, _, err := decodeOutput(make([]float32, 10), []int{1, 5, 2}, classes, 1, 1, 0.25); err == nil {
		t.Error("expected error for shape that matches no layout")
	}
	if _, _, err := decodeOutput(make([]float32, 3), []int{1, 6, 2}, classes, 1, 1, 0.25); err == nil {
		t.Error("expected error for short data")
	}
	if _, _, err := decodeOutput(nil, []int{4}, classes, 1, 1, 0.25); err == nil {
		t.Error("expected error for 1-d output")
	}
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()

	m.SetDetections([]Detection{FireDetection()})
	got, err := m.Detect(nil)
	if err != nil || len(got) != 1 {
		t.Fatalf("Detect() = %v, %v", got, err)
	}

	m.SetSequence([][]Detection{{SmokeDetection()}, nil})
	if got, _ := m.Detect(nil); len(got) != 1 || got[0].Class != ClassSmoke {
		t.Errorf("first sequenced Detect() = %v", got)
	}
	if got, _ := m.Detect(nil); len(got) != 0 {
		t.Errorf("second sequenced Detect() = %v", got)
	}
	if got, _ := m.Detect(nil); len(got) != 0 {
		t.Errorf("Detect() past the sequence = %v", got)
	}

	boom := errors.New("inference failed")
	m.SetError(boom)
	if _, err := m.Detect(nil); !errors.Is(err, boom) {
		t.Errorf("Detect() error = %v, want injected error", err)
	}
	if m.Calls() != 4 {
		t.Errorf("Calls() = %d, want 4", m.Calls())
	}
}

func TestColorFor(t *testing.T) {
	if c := ColorFor(ClassFire); c.R != 190 || c.G != 40 || c.B != 40 {
		t.Errorf("fire colour = %+v", c)
	}
	if c := ColorFor(ClassSmoke); c.R != 210 || c.G != 210 || c.B != 210 {
		t.Errorf("smoke colour = %+v", c)
	}
}

func TestAnnotate(t *testing.T) {
	mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()

	Annotate(&mat, []Detection{FireDetection()})

	// The box edge is drawn in the fire colour (BGR order in the Mat).
	box := FireDetection().Box
	v := mat.GetVecbAt(box.Min.Y+box.Dy()/2, box.Min.X)
	if v[0] != 40 || v[1] != 40 || v[2] != 190 {
		t.Errorf("pixel on box edge = %v, want [40 40 190]", v)
	}

	Annotate(nil, []Detection{FireDetection()})
}
