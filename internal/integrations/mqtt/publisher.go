package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"camguard-go/config"
	"camguard-go/internal/core/models"
	"camguard-go/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher veröffentlicht abgeschlossene Bewegungsereignisse und
// Gesundheits-Snapshots an den Broker, die Ereignis-Senke für externe
// Kollaborateure (Alerting, Visualisierung). Ein nil-Publisher ist
// gefahrlos aufrufbar.
type Publisher struct {
	config      config.MQTTConfig
	client      mqtt.Client
	isConnected bool
}

// NewPublisher erstellt einen MQTT-Publisher
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{config: cfg}
}

// Start verbindet den Publisher mit dem Broker
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	// MQTT-Client-Optionen konfigurieren
	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	// Optionale Authentifizierung
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	// Connection-Callbacks konfigurieren
	opts.SetOnConnectHandler(p.onConnectHandler)
	opts.SetConnectionLostHandler(p.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	p.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	return nil
}

// Stop trennt die Verbindung zum Broker
func (p *Publisher) Stop() {
	if p == nil {
		return
	}
	if p.client != nil && p.client.IsConnected() {
		log.Info("Disconnecting MQTT publisher...")
		p.client.Disconnect(250) // 250ms Wartezeit
		p.isConnected = false
	}
}

// IsConnected prüft, ob der Publisher verbunden ist
func (p *Publisher) IsConnected() bool {
	return p != nil && p.client != nil && p.client.IsConnected()
}

// PublishMotionEvent veröffentlicht ein abgeschlossenes Bewegungsereignis
func (p *Publisher) PublishMotionEvent(event *models.MotionEvent) {
	if p == nil || event == nil {
		return
	}
	topic := fmt.Sprintf("%s/%s/motion", p.config.TopicPrefix, event.CameraID)
	p.publishJSON(topic, event, false)
}

// PublishHealth veröffentlicht einen Gesundheits-Snapshot (retained, damit
// neue Abonnenten sofort den letzten Zustand sehen)
func (p *Publisher) PublishHealth(health models.CameraHealth) {
	if p == nil {
		return
	}
	topic := fmt.Sprintf("%s/%s/health", p.config.TopicPrefix, health.CameraID)
	p.publishJSON(topic, health, true)
}

// PublishSystemStats veröffentlicht die System-Statistiken des Recorders (retained)
func (p *Publisher) PublishSystemStats(stats *utils.SystemStats) {
	if p == nil || stats == nil {
		return
	}
	topic := fmt.Sprintf("%s/system/stats", p.config.TopicPrefix)
	p.publishJSON(topic, stats, true)
}

// publishJSON serialisiert und veröffentlicht eine Payload; Fehler werden
// geloggt und absorbiert, der Kern hängt nie am Broker
func (p *Publisher) publishJSON(topic string, payload interface{}, retain bool) {
	if !p.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal MQTT payload for %s: %v", topic, err)
		return
	}

	token := p.client.Publish(topic, 1, retain, data)
	if token.Wait() && token.Error() != nil {
		log.Warnf("Failed to publish to %s: %v", topic, token.Error())
		return
	}
	log.Debugf("Published message to topic: %s", topic)
}

// onConnectHandler wird aufgerufen, wenn die Verbindung hergestellt wurde
func (p *Publisher) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", p.config.Broker, p.config.Port)
	p.isConnected = true
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (p *Publisher) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
	p.isConnected = false
}
