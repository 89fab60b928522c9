package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ParseSeconds reads a duration given either as a bare number of seconds
// ("5", "2.5") or in Go duration syntax ("5s", "500ms").
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/float64(time.Second) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: use seconds (2.5) or a unit (2500ms)", s)
	}
	return d, nil
}

// secondsValue is a pflag.Value accepting what ParseSeconds accepts
type secondsValue time.Duration

func (s *secondsValue) Set(v string) error {
	d, err := ParseSeconds(v)
	if err != nil {
		return err
	}
	*s = secondsValue(d)
	return nil
}

func (s *secondsValue) String() string { return time.Duration(*s).String() }

func (s *secondsValue) Type() string { return "seconds" }

func secondsFlag(fs *pflag.FlagSet, name string, def time.Duration, usage string) {
	v := secondsValue(def)
	fs.Var(&v, name, usage)
}
