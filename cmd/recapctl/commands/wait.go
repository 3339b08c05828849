package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it finishes and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, cfg, err := c.connect(cmd)
			if err != nil {
				return err
			}
			return c.wait(cmd, cl, cfg, args[0])
		},
	}
	pollFlags(cmd)
	return cmd
}
