package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ProductionFeed - WebSocket лента событий производства
type ProductionFeed struct {
	hub *Hub
}

// NewProductionFeed создает ленту поверх хаба
func NewProductionFeed(hub *Hub) *ProductionFeed {
	return &ProductionFeed{hub: hub}
}

// ServeWS обрабатывает WebSocket подключения мониторов цеха
// GET /api/v1/production/ws
func (f *ProductionFeed) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Ошибка обновления WebSocket соединения")
		return
	}

	f.hub.AddClient(conn)
	log.Info().Int("clients", f.hub.GetClientsCount()).Msg("🖥️ Монитор производства подключен")

	defer func() {
		f.hub.RemoveClient(conn)
		log.Info().Int("clients", f.hub.GetClientsCount()).Msg("🖥️ Монитор производства отключен")
	}()

	// Клиент только слушает, чтение нужно для ping/pong и обнаружения закрытия
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("⚠️ WebSocket ошибка")
			}
			break
		}
	}
}

// Broadcast отправляет обновление всем подключенным клиентам
func (f *ProductionFeed) Broadcast(messageType string, data interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":      messageType,
		"data":      data,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	f.hub.BroadcastMessage(payload)
	return nil
}

// PublishBatchCommitted реализует services.EventPublisher
func (f *ProductionFeed) PublishBatchCommitted(_ context.Context, ev services.BatchCommittedEvent) error {
	return f.Broadcast(ev.Type, ev)
}
