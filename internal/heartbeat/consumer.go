package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/logs"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// Consumer — альтернативный heartbeat-транспорт: подписка на
// {prefix}/+/heartbeat, подтверждение в {prefix}/{deviceId}/ack. Семантика та
// же, что у HTTP-heartbeat: валидный ключ → upsert контакта устройства.
type Consumer struct {
	cfg        config.MQTTConfig
	tracker    *liveness.Tracker
	deviceKeys map[string]string

	// cm пишется из Start и читается из paho-горутины (ack), отсюда мьютекс
	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

func (c *Consumer) setConn(cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cm = cm
}

func (c *Consumer) conn() *autopaho.ConnectionManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cm
}

type message struct {
	DeviceID  string `json:"deviceId"`
	Firmware  string `json:"firmware"`
	DeviceKey string `json:"deviceKey"`
}

func NewConsumer(cfg config.MQTTConfig, tracker *liveness.Tracker, deviceKeys map[string]string) *Consumer {
	return &Consumer{cfg: cfg, tracker: tracker, deviceKeys: deviceKeys}
}

func (c *Consumer) topicFilter() string { return c.cfg.TopicPrefix + "/+/heartbeat" }

func (c *Consumer) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqtt broker url: %w", err)
	}
	clientID := c.cfg.ClientID
	if clientID == "" {
		clientID = "vehiclediag-" + uuid.NewString()[:8]
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(5 * time.Second),
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logs.Logger.Infof("mqtt connected, subscribing to %s", c.topicFilter())
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: c.topicFilter(), QoS: 1},
				},
			}); err != nil {
				logs.Logger.Errorf("mqtt subscribe: %v", err)
			}
		},
		OnConnectError: func(err error) {
			logs.Logger.Warnf("mqtt connect failed, retrying: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(p paho.PublishReceived) (bool, error) {
					c.handle(p.Packet.Topic, p.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				logs.Logger.Errorf("mqtt client error: %v", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.setConn(cm)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) {
	if cm := c.conn(); cm != nil {
		_ = cm.Disconnect(ctx)
	}
}

func (c *Consumer) handle(topic string, payload []byte) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		logs.Logger.Warnf("heartbeat on %s: bad json: %v", topic, err)
		return
	}
	if msg.DeviceID == "" {
		logs.Logger.Warnf("heartbeat on %s: missing deviceId", topic)
		return
	}
	expected, ok := config.DeviceKey(c.deviceKeys, msg.DeviceID)
	if !ok || msg.DeviceKey == "" || msg.DeviceKey != expected {
		logs.Logger.Warnf("heartbeat from %s: invalid device key", msg.DeviceID)
		return
	}

	if err := c.tracker.UpsertContact(msg.DeviceID, msg.Firmware); err != nil {
		logs.Logger.Errorf("heartbeat from %s: %v", msg.DeviceID, err)
		return
	}
	metrics.HeartbeatsReceived.WithLabelValues("mqtt").Inc()

	c.ack(msg.DeviceID)
}

func (c *Consumer) ack(deviceID string) {
	cm := c.conn()
	if cm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   fmt.Sprintf("%s/%s/ack", c.cfg.TopicPrefix, deviceID),
		QoS:     0,
		Payload: []byte(`{"ok":true}`),
	})
	if err != nil {
		logs.Logger.Debugf("heartbeat ack to %s: %v", deviceID, err)
	}
}
