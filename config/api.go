package config

import "fmt"

// APIConfig configures the HTTP API of the serve command.
type APIConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string `json:"token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

func (c APIConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}
