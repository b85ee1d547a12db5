package rabbitmq

import (
	"testing"
	"time"

	"github.com/gigline/voice-intake/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestMonitorClose_BrokerInitiatedClose(t *testing.T) {
	c := &Client{
		config:      &Config{},
		logger:      logger.NewNop().Logger,
		isConnected: true,
	}

	closeChan := make(chan *amqp.Error, 1)
	go c.monitorClose(closeChan)

	closeChan <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}

	assert.Eventually(t, func() bool {
		return !c.connected()
	}, time.Second, 10*time.Millisecond, "broker close must flip the connection state")
}

func TestMonitorClose_GracefulClose(t *testing.T) {
	c := &Client{
		config:      &Config{},
		logger:      logger.NewNop().Logger,
		isConnected: true,
	}

	closeChan := make(chan *amqp.Error)
	go c.monitorClose(closeChan)

	// A client-side Close closes the notification channel without an error.
	close(closeChan)

	assert.Eventually(t, func() bool {
		return !c.connected()
	}, time.Second, 10*time.Millisecond)
}
