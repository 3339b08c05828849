package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phrazzld/recap-api/internal/pipeline"
)

func (c *CLI) newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <job-type> [input-file]",
		Short: "Submit a job; reads the input JSON from a file or stdin",
		Long: fmt.Sprintf("Submit a job of type %s, %s, or %s.\n"+
			"The input is read from input-file, or from stdin when the file is omitted or \"-\".",
			pipeline.JobTypeRecap, pipeline.JobTypeParse, pipeline.JobTypeDetectTriggers),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			wait, _ := cmd.Flags().GetBool("wait")

			path := "-"
			if len(args) == 2 {
				path = args[1]
			}
			input, err := c.readInput(path)
			if err != nil {
				return err
			}

			cl, cfg, err := c.connect(cmd)
			if err != nil {
				return err
			}

			sub, err := cl.Submit(cmd.Context(), args[0], input, force)
			if err != nil {
				return err
			}

			if !wait || sub.Status == "completed" || sub.Status == "failed" {
				return printJSON(cmd.OutOrStdout(), sub)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "job %s submitted\n", sub.JobID)
			return c.wait(cmd, cl, cfg, sub.JobID)
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Bypass the result cache and replace a finished job")
	cmd.Flags().BoolP("wait", "w", false, "Poll until the job finishes and print its result")
	pollFlags(cmd)
	return cmd
}

func (c *CLI) readInput(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		if c.stdin == nil {
			return nil, fmt.Errorf("no input: pass an input file or pipe JSON on stdin")
		}
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return data, nil
}
