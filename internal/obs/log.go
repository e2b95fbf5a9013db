package obs

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// ConfigureLogger sets the level of the shared logger. Unknown levels fall back to info.
func ConfigureLogger(level string, out io.Writer) {
	l := Logger()
	if out != nil {
		l.SetOutput(out)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
}
