package logs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger — общий логгер приложения. До Init — text/info на stdout.
var Logger = logrus.New()

type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // опционально: дублировать в файл
}

func Init(o Options) {
	lvl, err := logrus.ParseLevel(o.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	switch o.Format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	Logger.SetOutput(os.Stdout)
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			Logger.Warnf("log file %s: %v (stdout only)", o.File, err)
			return
		}
		Logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
}
