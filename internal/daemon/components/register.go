package components

import (
	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/daemon"
)

// Set is the full daemon component graph.
type Set struct {
	State     *StateComponent
	Ingress   *IngressComponent
	Workers   *WorkersComponent
	Adapters  *AdaptersComponent
	Scheduler *SchedulerComponent
	HTTP      *HTTPServerComponent
}

// Register builds every component for cfg and adds it to d.
func Register(d *daemon.Daemon, cfg *config.Config) *Set {
	s := &Set{}
	s.State = NewStateComponent(cfg, d.DataDir())
	s.Ingress = NewIngressComponent(s.State, &cfg.Ingress)
	s.Workers = NewWorkersComponent(&cfg.Worker, s.Ingress, s.State)
	s.Adapters = NewAdaptersComponent(&cfg.Adapters, s.Ingress, s.Workers)
	s.Scheduler = NewSchedulerComponent(cfg, s.State, d.DataDir())
	s.HTTP = NewHTTPServerComponent(d, &cfg.Server, s.Ingress)

	d.AddComponent(s.State)
	d.AddComponent(s.Ingress)
	d.AddComponent(s.Workers)
	d.AddComponent(s.Adapters)
	d.AddComponent(s.Scheduler)
	d.AddComponent(s.HTTP)
	return s
}
