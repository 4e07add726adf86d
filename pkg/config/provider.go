package config

import (
	"fmt"
	"os"

	"github.com/entrhq/translator/pkg/llm/openai"
)

// BuildProvider creates an LLM provider based on configuration precedence:
// CLI flags > Environment variables > Settings file > Defaults
func BuildProvider(cliModel, cliBaseURL, cliAPIKey string, settings LLMSettings) (*openai.Provider, error) {
	finalModel := cliModel
	finalBaseURL := cliBaseURL
	finalAPIKey := cliAPIKey

	// Fall back to environment variables if CLI values are empty
	if finalAPIKey == "" {
		finalAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if finalBaseURL == "" {
		finalBaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	// Fall back to the settings file if still empty
	if finalModel == "" {
		finalModel = settings.Model
	}
	if finalBaseURL == "" {
		finalBaseURL = settings.BaseURL
	}
	if finalAPIKey == "" {
		finalAPIKey = settings.APIKey
	}

	if finalModel == "" {
		finalModel = openai.DefaultModel
	}

	if finalAPIKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY environment variable, use -api-key flag, or set llm.api_key in %s", DefaultPath())
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(finalModel),
	}
	if finalBaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(finalBaseURL))
	}

	provider, err := openai.NewProvider(finalAPIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}

// BuildReasoner creates the provider used when DeepThink is enabled. It
// shares endpoint and key resolution with BuildProvider and returns nil when
// no reasoner model is configured.
func BuildReasoner(cliBaseURL, cliAPIKey string, settings LLMSettings) (*openai.Provider, error) {
	if settings.ReasonerModel == "" {
		return nil, nil
	}
	return BuildProvider(settings.ReasonerModel, cliBaseURL, cliAPIKey, settings)
}
