package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub управляет всеми клиентами и рассылкой сообщений по топикам.
type Hub struct {
	clients      map[*Client]bool
	topicClients map[string]map[*Client]bool
	Register     chan *Client
	unregister   chan *Client
	mu           sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		topicClients: make(map[string]map[*Client]bool),
		Register:     make(chan *Client),
		unregister:   make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			for _, topic := range client.Topics {
				if h.topicClients[topic] == nil {
					h.topicClients[topic] = make(map[*Client]bool)
				}
				h.topicClients[topic][client] = true
			}
			log.Printf("Клиент зарегистрирован: userID %d, топики %v", client.UserID, client.Topics)
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				for _, topic := range client.Topics {
					delete(h.topicClients[topic], client)
					if len(h.topicClients[topic]) == 0 {
						delete(h.topicClients, topic)
					}
				}
				log.Printf("Клиент отсоединен: userID %d", client.UserID)
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToTopic — главный метод доставки: рассылает payload всем
// подписчикам топика. Медленный клиент отключается, а не тормозит остальных.
func (h *Hub) BroadcastToTopic(topic string, payload interface{}, messageType string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	envelope := Envelope{
		EventID:   uuid.New().String(),
		Type:      messageType,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("Ошибка сериализации сообщения для WebSocket: %v", err)
		return err
	}

	for client := range h.topicClients[topic] {
		select {
		case client.Send <- messageBytes:
		default:
			close(client.Send)
			delete(h.clients, client)
			for _, t := range client.Topics {
				delete(h.topicClients[t], client)
			}
		}
	}

	return nil
}
