// Command agni-tester runs the detector interactively on a webcam, a video
// file or a still image, with a confidence slider and the local alarm.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/agni/internal/alarm"
	"github.com/ayusman/agni/internal/capture"
	"github.com/ayusman/agni/internal/config"
	"github.com/ayusman/agni/internal/detector"
	"github.com/ayusman/agni/internal/log"
)

const windowTitle = "Agni Tester"

func main() {
	def := config.Default()

	var (
		source     = flag.String("source", "0", "device index, video file, stream URL or image (.jpg/.png)")
		backend    = flag.String("backend", def.Detector.Backend, "detector backend: onnx, service or mock")
		model      = flag.String("model", def.Detector.Model, "model file for the onnx and service backends")
		confidence = flag.Int("confidence", 50, "initial confidence threshold in percent")
		sound      = flag.String("alarm", strings.Join(def.Alarm.Command, " "), "alarm command, empty for silence")
	)
	flag.Parse()

	if err := run(*source, *backend, *model, *confidence, *sound); err != nil {
		log.Error(log.Fields{"error": err}, "tester failed")
		os.Exit(1)
	}
}

func run(source, backend, model string, confidence int, sound string) error {
	if confidence < 0 || confidence > 100 {
		return fmt.Errorf("confidence %d out of range [0,100]", confidence)
	}

	cfg := detector.DefaultConfig()
	cfg.Backend = backend
	cfg.Model = model
	det, err := detector.New(cfg)
	if err != nil {
		return err
	}
	defer det.Close()

	al := alarm.Alarm(alarm.Nop{})
	if fields := strings.Fields(sound); len(fields) > 0 {
		exec, err := alarm.NewExec(fields)
		if err != nil {
			return err
		}
		al = exec
	}
	defer al.Close()

	src := capture.ParseSource(source)
	cam := capture.OpenSource(src, true)
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	window := gocv.NewWindow(windowTitle)
	defer window.Close()
	slider := window.CreateTrackbar("Confidence %", 100)
	slider.SetPos(confidence)

	delay := 1
	if src.Kind == capture.SourceImage {
		delay = 30
	}

	log.Info(log.Fields{"source": src.String(), "backend": backend}, "tester started, press q to quit")

	for {
		mat, err := cam.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		dets, err := det.Detect(mat)
		if err != nil {
			log.Warn(log.Fields{"error": err}, "detect failed")
		}
		dets = detector.Filter(dets, float64(slider.GetPos())/100)
		detector.Annotate(mat, dets)
		if detector.HazardPresent(dets) {
			al.Sound()
		}

		window.IMShow(*mat)
		mat.Close()

		if key := window.WaitKey(delay); key == 'q' || key == 27 {
			return nil
		}
	}
}
