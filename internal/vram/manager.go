package vram

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fleetd/internal/fleet"
	"fleetd/pkg/types"
)

var unloadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetd",
		Subsystem: "vram",
		Name:      "model_unloads_total",
		Help:      "Model unload attempts by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(unloadsTotal)
}

// Manager drives VRAM eviction against the model host. It keeps no
// authoritative state: residency is re-queried from the host on every pass.
type Manager struct {
	client   HostClient
	preserve []string
	log      zerolog.Logger
	pub      fleet.EventPublisher

	perCallTimeout time.Duration
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithPublisher installs an event publisher for model record changes.
func WithPublisher(p fleet.EventPublisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.pub = p
		}
	}
}

// WithCallTimeout bounds each individual host call.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.perCallTimeout = d
		}
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(fleet.Event) {}

// NewManager constructs a Manager. preserve lists name fragments (matched
// case-insensitively) identifying embedding models that must stay loaded.
func NewManager(client HostClient, preserve []string, opts ...Option) *Manager {
	m := &Manager{
		client:         client,
		preserve:       append([]string(nil), preserve...),
		log:            zerolog.Nop(),
		pub:            noopPublisher{},
		perCallTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// isEmbedding reports whether name matches any preserve-list fragment,
// case-insensitive substring semantics.
func (m *Manager) isEmbedding(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range m.preserve {
		if frag == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

// LoadedModels returns the host's current residency with the embedding
// flag derived from the preserve list.
func (m *Manager) LoadedModels(ctx context.Context) ([]types.LoadedModel, error) {
	models, err := m.client.LoadedModels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].IsEmbedding = m.isEmbedding(models[i].Name)
	}
	return models, nil
}

// ManageVRAM evicts loaded models. With preserveEmbedding true, models
// whose name matches the preserve list are skipped; with false, every
// loaded model is a candidate. Eviction of each remaining model is
// attempted even when earlier unloads fail; failures are logged
// independently and tallied in the summary.
func (m *Manager) ManageVRAM(ctx context.Context, preserveEmbedding bool) (types.VRAMSummary, error) {
	loaded, err := m.LoadedModels(ctx)
	if err != nil {
		return types.VRAMSummary{}, err
	}

	var summary types.VRAMSummary
	for _, model := range loaded {
		if preserveEmbedding && model.IsEmbedding {
			summary.Preserved = append(summary.Preserved, model.Name)
			continue
		}
		summary.Attempted++
		summary.Models = append(summary.Models, model.Name)

		cctx, cancel := context.WithTimeout(ctx, m.perCallTimeout)
		err := m.client.Unload(cctx, model.Name)
		cancel()
		if err != nil {
			summary.Failed++
			unloadsTotal.WithLabelValues("failed").Inc()
			m.log.Warn().Err(err).Str("model", model.Name).Msg("model unload failed")
			continue
		}
		summary.Unloaded++
		unloadsTotal.WithLabelValues("unloaded").Inc()
		m.log.Info().Str("model", model.Name).Int("size_mb", model.SizeMB).Msg("model unloaded")
		m.pub.Publish(fleet.Event{
			Type:      fleet.EventModelUnload,
			Subject:   model.Name,
			Timestamp: time.Now(),
			Fields:    map[string]any{"size_mb": model.SizeMB},
		})
	}
	return summary, nil
}
