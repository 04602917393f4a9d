package api

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaClientID - идентификатор клиента в логах брокера
const KafkaClientID = "mfgcore-batch-events"

// CreateKafkaDialer собирает параметры подключения продюсера партий: SASL/PLAIN и TLS.
// TLS включается, если задан SASL или CA сертификат.
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	dialer := &kafka.Dialer{
		ClientID:  KafkaClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if username != "" && password != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: username, Password: password}
		log.Info().Str("username", username).Msg("🔐 Kafka: SASL/PLAIN для событий партий")
	}
	if dialer.SASLMechanism != nil || caCert != "" {
		dialer.TLS = kafkaTLSConfig(caCert)
	}
	return dialer
}

// kafkaTLSConfig: без CA или с нераспарсенным CA используются системные сертификаты
func kafkaTLSConfig(caCert string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert == "" {
		return cfg
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(caCert)) {
		log.Warn().Msg("⚠️ Kafka: CA сертификат не распознан, используем системные")
		return cfg
	}
	cfg.RootCAs = pool
	return cfg
}

// ParseKafkaBrokers разбирает список брокеров через запятую
func ParseKafkaBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
