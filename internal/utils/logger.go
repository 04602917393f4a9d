package utils

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger настраивает глобальный zerolog: в production - JSON, иначе - консольный вывод
func SetupLogger(environment, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if environment != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// MaskURL скрывает учетные данные в строке подключения
func MaskURL(raw string) string {
	if idx := strings.LastIndex(raw, "@"); idx > 0 {
		if schemeIdx := strings.Index(raw, "://"); schemeIdx > 0 && schemeIdx < idx {
			return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
		}
	}
	return raw
}
