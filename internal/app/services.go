package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/db"
	"github.com/dokzlo13/irlightd/internal/device"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/ledger"
	"github.com/dokzlo13/irlightd/internal/sensor"
	"github.com/dokzlo13/irlightd/internal/storage"
	"github.com/dokzlo13/irlightd/internal/transport"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Store  *storage.Store
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Shared broker connection, nil when nothing needs MQTT
	MQTT mqtt.Client

	// Fixture registry
	fixtures   map[string]*fixture.Controller
	order      []string
	watchers   []*sensor.Watcher
	transports []transport.Transport

	// HTTP surfaces
	Health *HealthService
	API    *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{
		cfg:      cfg,
		fixtures: make(map[string]*fixture.Controller),
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize snapshot store and command ledger
	s.Store = storage.NewStore(database.DB)
	s.Ledger = ledger.New(database.DB)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Prepare the shared MQTT client when any fixture needs the broker
	if s.needsMQTT() {
		if cfg.MQTT.Broker == "" {
			s.Close()
			return nil, fmt.Errorf("mqtt broker is required by fixture configuration")
		}
		s.MQTT = s.newMQTTClient()
	}

	// Build fixtures. A broken fixture definition is fatal for that fixture
	// only: log it and keep going with the rest.
	for i := range cfg.Fixtures {
		fcfg := &cfg.Fixtures[i]
		if err := s.setupFixture(fcfg); err != nil {
			log.Error().Err(err).Str("fixture", fcfg.ID).Msg("Fixture setup failed, skipping")
		}
	}

	// Route sensor transitions to the owning controller
	s.Bus.Subscribe(eventbus.EventTypeSensor, s.handleSensorEvent)

	// Initialize HTTP surfaces
	s.Health = NewHealthService(cfg)
	s.API = NewAPIService(cfg, s)

	return s, nil
}

// needsMQTT reports whether any fixture uses an MQTT transport or sensor.
func (s *Services) needsMQTT() bool {
	for i := range s.cfg.Fixtures {
		f := &s.cfg.Fixtures[i]
		if f.Transport.Type == "mqtt" || f.Sensor != nil {
			return true
		}
	}
	return false
}

// setupFixture builds the controller for one fixture config entry.
func (s *Services) setupFixture(fcfg *config.FixtureConfig) error {
	caps, err := device.Load(fcfg.CodesDir, fcfg.DeviceCode)
	if err != nil {
		return err
	}

	tx, err := transport.New(fcfg.Transport, s.MQTT, s.cfg.MQTT.MinSendInterval.Duration())
	if err != nil {
		return err
	}
	s.transports = append(s.transports, tx)

	var src fixture.SensorSource
	confirmDelay := time.Duration(0)
	restorePower := true
	if fcfg.Sensor != nil {
		w := sensor.NewWatcher(fcfg.ID, fcfg.Sensor.Topic, s.Bus)
		s.watchers = append(s.watchers, w)
		src = w
		confirmDelay = fcfg.Sensor.Delay.Duration()
		restorePower = fcfg.Sensor.GetRestoreState()
	}

	ctrl := fixture.New(fixture.Options{
		ID:           fcfg.ID,
		Name:         fcfg.Name,
		DeviceCode:   fcfg.DeviceCode,
		Caps:         caps,
		Transport:    tx,
		Delay:        fcfg.Delay.Duration(),
		Publisher:    &statePublisher{store: s.Store, bus: s.Bus},
		Recorder:     s.Ledger,
		Sensor:       src,
		ConfirmDelay: confirmDelay,
		RestorePower: restorePower,
	})

	// Seed from the persisted snapshot, if any, before the fixture goes live
	s.restoreFixture(ctrl)

	s.fixtures[fcfg.ID] = ctrl
	s.order = append(s.order, fcfg.ID)

	log.Info().
		Str("fixture", fcfg.ID).
		Int("device_code", fcfg.DeviceCode).
		Str("manufacturer", caps.Manufacturer).
		Bool("sensor", fcfg.Sensor != nil).
		Msg("Fixture ready")
	return nil
}

// restoreFixture seeds a controller from its persisted snapshot.
func (s *Services) restoreFixture(ctrl *fixture.Controller) {
	payload, _, err := s.Store.Get(storage.KindFixture, ctrl.ID())
	if err != nil {
		log.Warn().Err(err).Str("fixture", ctrl.ID()).Msg("Failed to read persisted snapshot")
		return
	}
	if len(payload) == 0 {
		return
	}

	var snap fixture.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		log.Warn().Err(err).Str("fixture", ctrl.ID()).Msg("Failed to parse persisted snapshot")
		return
	}

	ctrl.SeedFrom(snap)
	log.Debug().Str("fixture", ctrl.ID()).Msg("Restored persisted snapshot")
}

// handleSensorEvent routes a bus sensor event to the owning controller.
func (s *Services) handleSensorEvent(event eventbus.Event) {
	id, _ := event.Data["fixture"].(string)
	oldState, _ := event.Data["old"].(string)
	newState, _ := event.Data["new"].(string)

	ctrl, ok := s.fixtures[id]
	if !ok {
		return
	}
	ctrl.HandleSensorEvent(oldState, newState)
}

// Fixture returns a controller by ID.
func (s *Services) Fixture(id string) (*fixture.Controller, bool) {
	ctrl, ok := s.fixtures[id]
	return ctrl, ok
}

// Fixtures returns all controllers in configuration order.
func (s *Services) Fixtures() []*fixture.Controller {
	out := make([]*fixture.Controller, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.fixtures[id])
	}
	return out
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if s.MQTT != nil {
		token := s.MQTT.Connect()
		if !token.WaitTimeout(s.cfg.MQTT.ConnectTimeout.Duration()) {
			return fmt.Errorf("mqtt connect to %s timed out", s.cfg.MQTT.Broker)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect to %s failed: %w", s.cfg.MQTT.Broker, err)
		}
		log.Info().Str("broker", s.cfg.MQTT.Broker).Msg("Connected to MQTT broker")
	}

	s.Health.Start(ctx)
	s.API.Start(ctx)

	go s.ledgerCleanupLoop(ctx)

	return nil
}

// subscribeWatchers (re)subscribes all sensor watchers. Called on every
// broker (re)connect since subscriptions do not survive a clean session.
func (s *Services) subscribeWatchers(client mqtt.Client) {
	for _, w := range s.watchers {
		if err := w.Subscribe(client); err != nil {
			log.Error().Err(err).Msg("Sensor subscription failed")
		}
	}
}

// ledgerCleanupLoop periodically trims old command ledger entries.
func (s *Services) ledgerCleanupLoop(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Ledger.Cleanup(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("Ledger cleanup done")
			}
		}
	}
}

// ClearState clears all persisted fixture snapshots.
func (s *Services) ClearState() error {
	return s.Store.Clear("")
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	for _, tx := range s.transports {
		tx.Close()
	}
	if s.MQTT != nil && s.MQTT.IsConnected() {
		s.MQTT.Disconnect(250)
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// newMQTTClient builds the shared broker client. Watcher subscriptions are
// installed from the OnConnect handler so they survive reconnects.
func (s *Services) newMQTTClient() mqtt.Client {
	cfg := s.cfg

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.MQTT.ConnectTimeout.Duration())

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.subscribeWatchers(client)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return mqtt.NewClient(opts)
}

// statePublisher persists every published snapshot and forwards it to bus
// observers.
type statePublisher struct {
	store *storage.Store
	bus   *eventbus.Bus
}

func (p *statePublisher) PublishState(id string, snap fixture.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("fixture", id).Msg("Failed to marshal snapshot")
		return
	}

	if err := p.store.Set(storage.KindFixture, id, payload); err != nil {
		log.Error().Err(err).Str("fixture", id).Msg("Failed to persist snapshot")
	}

	p.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeState,
		Data: map[string]interface{}{
			"fixture": id,
			"state":   snap,
		},
	})
}
