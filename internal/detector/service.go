package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/agni/internal/log"
)

const serviceScript = "detect_service.py"

// ServiceDetector implements Detector by talking to an external inference
// process (scripts/detect_service.py running ultralytics). Each request is a
// 4-byte big-endian length followed by a JPEG; each response is one JSON line.
type ServiceDetector struct {
	config    Config
	command   []string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
	idleGen   uint64
}

// NewServiceDetector creates a service detector.
// The process is started lazily on first detection.
func NewServiceDetector(config Config) (*ServiceDetector, error) {
	command := config.Command
	if len(command) == 0 {
		scriptPath := findServiceScript()
		if scriptPath == "" {
			return nil, fmt.Errorf("%s not found", serviceScript)
		}
		pythonPath := findVenvPython()
		if pythonPath == "" {
			pythonPath = "python3"
		}
		command = []string{pythonPath, scriptPath}
		if config.Model != "" {
			command = append(command, "--model", config.Model)
		}
		command = append(command, "--min-score", strconv.FormatFloat(config.MinScore, 'f', -1, 64))
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Second
	}

	return &ServiceDetector{
		config:  config,
		command: command,
	}, nil
}

// Detect sends the frame to the service and returns its detections.
func (d *ServiceDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	dets, err := d.roundTrip(buf.GetBytes())
	if err != nil {
		// The stream is out of sync after a failed exchange.
		d.shutdown()
		return nil, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return dets, nil
}

func (d *ServiceDetector) roundTrip(data []byte) ([]Detection, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, errors.New("detect service: " + response.Error)
	}

	result := make([]Detection, 0, len(response.Detections))
	for _, jd := range response.Detections {
		if jd.Confidence < d.config.MinScore {
			continue
		}
		result = append(result, jd.toDetection())
	}
	return result, nil
}

// Close shuts down the service process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *ServiceDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.command[0], d.command[1:]...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detect service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	log.Info(log.Fields{"pid": d.cmd.Process.Pid, "command": d.command[0]}, "detect service started")
	return nil
}

func (d *ServiceDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	log.Debug(log.Fields{"error": err}, "detect service stopped")
	return err
}

// resetIdleTimer must be called with d.mu held.
func (d *ServiceDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleGen++
	gen := d.idleGen
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.idleShutdown(gen)
	})
}

// idleShutdown stops the process unless it was used after timer gen was
// armed. A timer that already fired cannot be stopped, so a stale callback
// may still arrive here while Detect holds the lock.
func (d *ServiceDetector) idleShutdown(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.idleGen {
		return
	}
	d.shutdown()
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".agni", "scripts", serviceScript),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".agni/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// jsonDetection is one entry of the service response. Box is x1,y1,x2,y2
// in frame pixels.
type jsonDetection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

func (j jsonDetection) toDetection() Detection {
	return Detection{
		Class:      j.Class,
		Confidence: j.Confidence,
		Box:        image.Rect(int(j.Box[0]), int(j.Box[1]), int(j.Box[2]), int(j.Box[3])),
	}
}
