package cli

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Run executes the show-config command
func (c *ShowConfigCmd) Run(ctx *Context) error {
	data, err := yaml.Marshal(ctx.Config.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = ctx.out().Write(data)
	return err
}
