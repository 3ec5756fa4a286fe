package cli

import (
	"context"

	"github.com/Backland-Labs/relay/internal/comment"
	"github.com/Backland-Labs/relay/internal/config"
	"github.com/Backland-Labs/relay/internal/github"
	"github.com/Backland-Labs/relay/internal/workflow"
)

// ConfigLoader interface for dependency injection in tests
type ConfigLoader interface {
	Load() (*config.Config, error)
}

// Engine interface for dependency injection in tests
type Engine interface {
	Run(ctx context.Context) error
}

// Real implementations for production use

// RealConfigLoader implements ConfigLoader using the real config package
type RealConfigLoader struct{}

func (r *RealConfigLoader) Load() (*config.Config, error) {
	return config.New()
}

// NewRealEngine builds the production workflow engine from configuration
func NewRealEngine(cfg *config.Config) *workflow.Engine {
	client := github.NewClient(cfg.Token, cfg.Owner, cfg.Repo, cfg.Workflow)
	engine := workflow.NewEngine(client, cfg)
	if cfg.CommentURL != "" {
		engine.SetNotifier(comment.NewNotifier(cfg.CommentURL, cfg.CommentToken))
	}
	return engine
}

// NewRealDependencies creates production dependencies. The Engine is built
// lazily once configuration is finalized.
func NewRealDependencies() *Dependencies {
	return &Dependencies{
		ConfigLoader: &RealConfigLoader{},
	}
}

// Dependencies struct for injection
type Dependencies struct {
	ConfigLoader ConfigLoader
	Engine       Engine
}
