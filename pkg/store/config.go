// pkg/store/config.go

package store

import (
	"strings"
	"time"

	"AveStream/pkg/utils"

	"github.com/pkg/errors"
)

// Config for clients.
type Config struct {
	Retries      int           `envconfig:"RETRIES" default:"2"`
	ReadOnly     bool          `envconfig:"READ_ONLY"`
	Prefix       string        `envconfig:"PREFIX"` // namespace for every key in the backend
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
}

// Creator opens a store from the address part of a store URL.
type Creator func(driver, addr string, conf *Config) (Store, error)

var storeDrivers = make(map[string]Creator)

// Register makes a backend available under a URL scheme.
func Register(name string, register Creator) {
	storeDrivers[name] = register
}

// NewClient opens the store named by uri, e.g. redis://localhost:6379/1.
// A uri without a scheme is a Redis address.
func NewClient(uri string, conf *Config) (Store, error) {
	if conf == nil {
		conf = &Config{}
	}
	if !strings.Contains(uri, "://") {
		uri = "redis://" + uri
	}
	logger.Debugf("Store address: %s", utils.RemovePassword(uri))
	p := strings.Index(uri, "://")
	driver := uri[:p]
	f, ok := storeDrivers[driver]
	if !ok {
		return nil, errors.Errorf("invalid store driver: %s", driver)
	}
	s, err := f(driver, uri[p+3:], conf)
	if err != nil {
		return nil, errors.Wrapf(err, "store %s is not available", driver)
	}
	if conf.ReadOnly {
		s = &readOnly{s}
	}
	return s, nil
}
