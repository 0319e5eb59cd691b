package alarm

import "time"

// GPIOConfig drives a buzzer or beacon from a GPIO line.
type GPIOConfig struct {
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Duration  time.Duration `yaml:"duration"`
}

func (c GPIOConfig) withDefaults() GPIOConfig {
	if c.Chip == "" {
		c.Chip = "gpiochip0"
	}
	if c.Duration <= 0 {
		c.Duration = 3 * time.Second
	}
	return c
}
