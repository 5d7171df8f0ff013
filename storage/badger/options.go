package badger

import (
	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// logger routes badger messages through the dsv leveled logger, demoting badger's
// chatty info messages to debug.
type logger struct{}

func (logger) Errorf(format string, args ...interface{})   { dsv.Errorf("badger: "+format, args...) }
func (logger) Warningf(format string, args ...interface{}) { dsv.Warningf("badger: "+format, args...) }
func (logger) Infof(format string, args ...interface{})    { dsv.Debugf("badger: "+format, args...) }
func (logger) Debugf(format string, args ...interface{})   { dsv.Debugf("badger: "+format, args...) }

func getOptions(path string, inMemory bool, config dsv.Config) (*badger.Options, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(logger{})
	opts = opts.WithNumVersionsToKeep(DefaultVersionsToKeep)
	opts = opts.WithSyncWrites(DefaultSyncWrites)

	readOnly, found, err := config.GetBool("ReadOnly")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithReadOnly(readOnly)
	}

	valueSizeThresh, found, err := config.GetInt("ValueThreshold")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithValueThreshold(int64(valueSizeThresh))
	}

	vlogSize, found, err := config.GetInt("ValueLogFileSize")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithValueLogFileSize(int64(vlogSize))
	}

	return &opts, nil
}
