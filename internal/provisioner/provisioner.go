// Package provisioner implements the reconciliation controller: the
// single writer that converges runtime reality toward the desired state
// held in the active-state store. One provisioner manages one catalog
// host.
package provisioner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ozwald-dev/ozwald/internal/catalog"
	"github.com/ozwald-dev/ozwald/internal/config"
	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/metrics"
	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/models"
)

// Notifier receives instance change events. The API server plugs its
// websocket hub in here.
type Notifier interface {
	InstanceChanged(inst models.Instance)
}

// Provisioner drives instances on one host through their lifecycle.
type Provisioner struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	store     statestore.Store
	shim      runtime.Shim
	vault     *vault.Materializer
	cache     *footprint.Cache
	estimator *footprint.Estimator
	queue     footprint.Queue
	notifier  Notifier

	host models.Host

	// mu guards the host reservation and the in-flight bookkeeping maps.
	mu         sync.Mutex
	reserved   footprint.Reservation
	cancels    map[string]context.CancelFunc
	tokens     map[string]map[string]string
	admitted   map[string]models.Footprint
	drainGoals map[string]models.InstanceState
	pending    map[string]*pendingAdd

	ticker  *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	running bool
}

// Options bundles the collaborators a provisioner needs.
type Options struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Store     statestore.Store
	Shim      runtime.Shim
	Vault     *vault.Materializer
	Cache     *footprint.Cache
	Estimator *footprint.Estimator
	Queue     footprint.Queue
	Notifier  Notifier
}

// New creates a provisioner for the host named in the configuration.
func New(opts Options) (*Provisioner, error) {
	host := opts.Catalog.Host(opts.Config.Provisioner.Host)
	if host == nil {
		return nil, fmt.Errorf("provisioner host %q is not in the catalog", opts.Config.Provisioner.Host)
	}

	return &Provisioner{
		cfg:        opts.Config,
		catalog:    opts.Catalog,
		store:      opts.Store,
		shim:       opts.Shim,
		vault:      opts.Vault,
		cache:      opts.Cache,
		estimator:  opts.Estimator,
		queue:      opts.Queue,
		notifier:   opts.Notifier,
		host:       *host,
		cancels:    make(map[string]context.CancelFunc),
		tokens:     make(map[string]map[string]string),
		admitted:   make(map[string]models.Footprint),
		drainGoals: make(map[string]models.InstanceState),
		pending:    make(map[string]*pendingAdd),
		stop:       make(chan bool),
	}, nil
}

// Host returns the catalog host this provisioner manages.
func (p *Provisioner) Host() models.Host {
	return p.host
}

// SetNotifier installs the change notifier. Call before Start.
func (p *Provisioner) SetNotifier(n Notifier) {
	p.notifier = n
}

// Start recovers persisted state, seeds persistent services and begins
// the reconcile loop.
func (p *Provisioner) Start(ctx context.Context) error {
	if p.running {
		log.Println("Provisioner already running")
		return nil
	}

	if err := p.recover(ctx); err != nil {
		return fmt.Errorf("state recovery failed: %w", err)
	}
	if err := p.seedPersistentServices(ctx); err != nil {
		return fmt.Errorf("failed to seed persistent services: %w", err)
	}

	p.running = true
	p.ticker = time.NewTicker(p.cfg.Provisioner.ReconcileInterval)

	log.Printf("Provisioner started for host %s (reconciling every %s)",
		p.host.Name, p.cfg.Provisioner.ReconcileInterval)

	go func() {
		// Reconcile immediately on start
		p.reconcile()

		for {
			select {
			case <-p.ticker.C:
				p.reconcile()
			case <-p.stop:
				p.ticker.Stop()
				p.running = false
				log.Println("Provisioner stopped")
				return
			}
		}
	}()

	return nil
}

// Stop halts the reconcile loop, drains every non-terminal instance on
// this host and waits for in-flight workers.
func (p *Provisioner) Stop(ctx context.Context) {
	if p.running {
		p.stop <- true
	}
	p.drainAll(ctx)
	p.wg.Wait()
}

// reconcile runs one convergence pass. Draining instances are handled
// before any new activation starts so freed capacity is visible to
// admission.
func (p *Provisioner) reconcile() {
	ctx := context.Background()

	instances, err := p.hostInstances(ctx)
	if err != nil {
		log.Printf("Error listing instances: %v", err)
		return
	}

	draining := 0
	active := make(map[string]int)
	for _, inst := range instances {
		switch inst.State {
		case models.StateDraining:
			draining++
			p.spawn(inst, p.runDrain)
		case models.StateActive:
			active[inst.Identity.Realm]++
		}
	}
	for realm := range p.catalog.Realms {
		metrics.ActiveInstances.WithLabelValues(realm).Set(float64(active[realm]))
	}

	// Drain before admit: capacity released this pass must settle
	// before new placements consume it.
	if draining == 0 {
		for _, inst := range instances {
			if inst.State == models.StateDesired {
				p.spawn(inst, p.runActivation)
			}
		}
	}

	if p.unloaded(instances) {
		p.processFootprintRequests(ctx)
	}

	if pruned, err := p.store.PruneTerminal(ctx, p.cfg.Provisioner.RetainStopped); err != nil {
		log.Printf("Error pruning terminal instances: %v", err)
	} else if pruned > 0 {
		p.debugLog("pruned %d terminal instance record(s)", pruned)
	}
}

// spawn launches a worker for the instance unless one is already
// in flight for its identity.
func (p *Provisioner) spawn(inst models.Instance, run func(ctx context.Context, inst models.Instance)) {
	key := inst.Identity.Key()

	p.mu.Lock()
	if _, busy := p.cancels[key]; busy {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancels[key] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			cancel()
			p.mu.Lock()
			delete(p.cancels, key)
			p.mu.Unlock()
		}()
		run(ctx, inst)
	}()
}

// hostInstances lists every instance record placed on this host, across
// all catalog realms.
func (p *Provisioner) hostInstances(ctx context.Context) ([]models.Instance, error) {
	var out []models.Instance
	for realm := range p.catalog.Realms {
		instances, err := p.store.List(ctx, realm)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			if inst.Host == p.host.Name {
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

// unloaded reports whether nothing is running or in flight on this
// host. Footprint measurements only run on an unloaded host.
func (p *Provisioner) unloaded(instances []models.Instance) bool {
	for _, inst := range instances {
		if !inst.State.Terminal() {
			return false
		}
	}
	p.mu.Lock()
	busy := len(p.cancels) > 0
	p.mu.Unlock()
	return !busy
}

// setState transitions an instance record with CAS semantics and fires
// metrics and notifications on success.
func (p *Provisioner) setState(ctx context.Context, id models.Identity, expected models.InstanceState, apply func(*models.Instance)) error {
	err := p.store.Transition(ctx, id, expected, apply)
	if err != nil {
		return err
	}
	inst, gerr := p.store.Get(ctx, id)
	if gerr == nil {
		metrics.Transitions.WithLabelValues(string(inst.State)).Inc()
		if p.notifier != nil {
			p.notifier.InstanceChanged(inst)
		}
	}
	return nil
}

func (p *Provisioner) debugLog(format string, args ...interface{}) {
	if p.cfg.Server.Debug {
		log.Printf("[DEBUG] "+format, args...)
	}
}
