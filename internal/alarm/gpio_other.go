//go:build !linux

package alarm

import "errors"

// NewGPIO is only available on Linux.
func NewGPIO(cfg GPIOConfig) (Alarm, error) {
	return nil, errors.New("alarm: gpio requires linux")
}
