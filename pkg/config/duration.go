package config

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Duration is a time.Duration written as a Go duration string ("30s").
// Bare numbers, quoted or not, are read as seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	if secs, err := cast.ToFloat64E(v); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	dur, err := cast.ToDurationE(v)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid duration %s", string(b))
	}
	*d = Duration(dur)
	return nil
}
