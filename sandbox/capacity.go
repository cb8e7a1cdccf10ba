package sandbox

import (
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// availableMemory is swapped in tests.
var availableMemory = func() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Available, nil
}

// Capacity caps the configured worker count by how many workers of
// perWorkerMB fit in currently available memory. It never returns less than
// one, and returns configured unchanged when perWorkerMB is 0 or memory
// cannot be read.
func Capacity(configured, perWorkerMB int, log *zap.SugaredLogger) int {
	log = logger.OrNop(log)
	if configured < 1 {
		configured = 1
	}
	if perWorkerMB <= 0 {
		return configured
	}
	avail, err := availableMemory()
	if err != nil {
		log.Debugw("Memory stats unavailable, keeping configured concurrency", logger.FieldError, err.Error())
		return configured
	}
	fit := int(avail / (uint64(perWorkerMB) << 20))
	if fit < 1 {
		fit = 1
	}
	if fit < configured {
		log.Infow("Sandbox concurrency reduced to fit available memory",
			"configured", configured,
			"effective", fit,
			"available_mb", avail>>20)
		return fit
	}
	return configured
}
