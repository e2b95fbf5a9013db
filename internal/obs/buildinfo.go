package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "hookrelay build information.",
		},
		[]string{"version", "commit", "encryption"},
	)
)

// InitBuildInfo registers build_info once and sets it to 1 for the given labels.
func InitBuildInfo(version, commit string, encryptionEnabled bool) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	enc := "disabled"
	if encryptionEnabled {
		enc = "enabled"
	}
	buildInfo.WithLabelValues(version, commit, enc).Set(1)
}
