package cli

import (
	"os"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// profile is the optional YAML agent profile given by --config
//
//	supervisor:
//	  system_prompt: "You are Donna..."
//	  max_iterations: 8
//	  model_timeout: 30s
//	notes:
//	  max_iterations: 4
//	breaker:
//	  max_failures: 3
type profile struct {
	Supervisor chat.AgentConfig      `yaml:"supervisor"`
	Notes      chat.AgentConfig      `yaml:"notes"`
	Breaker    adapter.BreakerConfig `yaml:"breaker"`
}

func loadProfile(path string) (*profile, error) {
	var prof profile
	if path == "" {
		return &prof, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, &prof); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile", goerr.V("path", path))
	}

	for name, agent := range map[string]chat.AgentConfig{"supervisor": prof.Supervisor, "notes": prof.Notes} {
		if agent.MaxIterations < 0 {
			return nil, goerr.New("max_iterations must not be negative", goerr.V("agent", name), goerr.V("path", path))
		}
		if agent.ModelTimeout < 0 {
			return nil, goerr.New("model_timeout must not be negative", goerr.V("agent", name), goerr.V("path", path))
		}
	}
	return &prof, nil
}

// applyFlags lets command line limits override the profile for both agents
func (p *profile) applyFlags(cfg *config) {
	for _, agent := range []*chat.AgentConfig{&p.Supervisor, &p.Notes} {
		if cfg.maxIterations > 0 {
			agent.MaxIterations = int(cfg.maxIterations)
		}
		if cfg.modelTimeout > 0 {
			agent.ModelTimeout = cfg.modelTimeout
		}
	}
}
