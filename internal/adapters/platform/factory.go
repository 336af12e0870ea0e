package platform

import (
	"fmt"

	"social-pilot/internal/domain"
)

// Factory выдаёт клиента платформы по значению Provider.
// Набор клиентов фиксируется при старте сервиса.
type Factory struct {
	clients map[domain.Provider]domain.HistoricalDataProvider
}

// NewFactory создаёт фабрику клиентов.
func NewFactory(clients map[domain.Provider]domain.HistoricalDataProvider) *Factory {
	return &Factory{clients: clients}
}

// Client возвращает клиента для платформы.
func (f *Factory) Client(provider domain.Provider) (domain.HistoricalDataProvider, error) {
	client, ok := f.clients[provider]
	if !ok {
		return nil, fmt.Errorf("нет клиента для платформы %s", provider)
	}
	return client, nil
}
