package bootstrap

import (
	"fmt"
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/runtime"
	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/llmtest"
)

// ScriptedProviderName selects the deterministic built-in provider. It
// answers every request with the scripted fallback line, which keeps the
// console and smoke deployments usable without any model credentials.
const ScriptedProviderName = "scripted"

// ProviderBuilder constructs the model adapter factory after configuration
// is loaded, so injected adapters can read provider key rings and base URLs
// from it.
type ProviderBuilder func(cfg config.RuntimeConfig) (runtime.ProviderFactory, error)

// DefaultProviderBuilder ignores the configuration and serves only the
// scripted provider. Deployments with real model adapters inject their own
// builder through Options.Providers.
func DefaultProviderBuilder() ProviderBuilder {
	return func(config.RuntimeConfig) (runtime.ProviderFactory, error) {
		return DefaultProviderFactory(), nil
	}
}

// DefaultProviderFactory resolves the scripted provider and rejects every
// other name with a validation error naming the missing adapter.
func DefaultProviderFactory() runtime.ProviderFactory {
	return func(provider, model string) (ports.Provider, error) {
		name := strings.ToLower(strings.TrimSpace(provider))
		if name == "" || name == ScriptedProviderName {
			return llmtest.NewProvider().WithIdentity(ScriptedProviderName, model), nil
		}
		return nil, errors.NewValidation("provider",
			fmt.Sprintf("no %s adapter is built in; inject a provider factory", provider))
	}
}
