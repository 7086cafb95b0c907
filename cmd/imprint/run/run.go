// Package runcmder provides the one-shot run command: process a single
// archive and wait for the memory document.
package runcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	servecmder "github.com/soulprintco/imprint/cmd/imprint/serve"
	"github.com/soulprintco/imprint/pkg/config"
	"github.com/soulprintco/imprint/pkg/logger"
)

type runCommander struct {
	configDir string
	debug     bool
}

const runLongDesc string = `Process one exported archive and wait for completion.

Queues a job for the given user and archive path, blocks until the pipeline
finishes, and prints the synthesized memory document.

Examples:
  imprint run user-123 exports/user-123/conversations.json`

const runShortDesc string = "Process one archive to completion"

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run <user-id> <storage-path>",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(args[0], args[1])
		},
	}

	return cmd
}

func (c *runCommander) run(userID, storagePath string) error {
	log := logger.NewLogger(c.debug)
	defer log.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	ctx := context.Background()
	system, err := servecmder.NewSystem(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer system.Close()

	handle, err := system.Runner.Enqueue(ctx, userID, storagePath)
	if err != nil {
		return fmt.Errorf("queueing job: %w", err)
	}

	log.Info("job queued, waiting",
		zap.String("job_id", handle.JobID),
		zap.String("user_id", userID),
	)

	<-handle.Done()
	if err := handle.Err(); err != nil {
		return fmt.Errorf("job %s failed: %w", handle.JobID, err)
	}

	doc, err := system.Store.GetLatestMemory(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading memory document: %w", err)
	}

	fmt.Println(doc.Markdown())
	return nil
}
