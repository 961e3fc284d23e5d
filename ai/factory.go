package ai

import "fmt"

// FactoryBuilder constructs an EmbedderFactory for one provider.
type FactoryBuilder func(*Config) (EmbedderFactory, error)

// SelectFactory returns the factory for config.Provider from builders.
func SelectFactory(config *Config, builders map[string]FactoryBuilder) (EmbedderFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	build, ok := builders[config.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.Provider)
	}
	return build(config)
}
