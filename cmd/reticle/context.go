package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reticle/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiBaseURL resolves the daemon URL from --api or the configured bind address.
func (c *commandContext) apiBaseURL() string {
	if c.apiFlag != nil {
		if v := strings.TrimRight(strings.TrimSpace(*c.apiFlag), "/"); v != "" {
			return v
		}
	}
	bind := ""
	if cfg := c.configValue(); cfg != nil {
		bind = strings.TrimSpace(cfg.Paths.APIBind)
	}
	if bind == "" {
		bind = "127.0.0.1:7491"
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func (c *commandContext) client() *apiClient {
	token := ""
	if cfg := c.configValue(); cfg != nil {
		token = cfg.Paths.APIToken
	}
	return newAPIClient(c.apiBaseURL(), token)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
