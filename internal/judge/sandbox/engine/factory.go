package engine

import "fmt"

// New builds the engine selected by cfg.Backend.
func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case "", BackendProcess:
		return NewProcessEngine(cfg)
	case BackendDocker:
		cli, err := NewDockerClient(cfg.Docker.Host)
		if err != nil {
			return nil, err
		}
		return NewDockerEngine(cfg, cli)
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}
