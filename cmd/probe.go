package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luma/esplink/client"
)

var (
	probeWait time.Duration
)

var ErrNoReply = errors.New("No reply before the deadline")

func init() {
	flags := ProbeCmd.PersistentFlags()

	flags.DurationVarP(&probeWait, "wait", "w", 5*time.Second, "How long to wait for a reply")
}

var ProbeCmd = &cobra.Command{
	Use:   "probe <addr> <message>",
	Short: "Send a message to a device listener and print the reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := makeLogger("warn")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), probeWait)
		defer cancel()

		conn := client.New(log.Named("probe"))
		if err := conn.Connect(ctx, args[0]); err != nil {
			return err
		}
		defer conn.Disconnect()

		if err := conn.Send(ctx, []byte(args[1])); err != nil {
			return err
		}

		select {
		case reply, ok := <-conn.Messages():
			if !ok {
				return client.ErrNotConnected
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", reply)
			return nil

		case <-ctx.Done():
			return ErrNoReply
		}
	},
}
