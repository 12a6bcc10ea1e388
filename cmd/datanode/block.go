package main

import (
	"context"
	"io"
	"os"
	"time"

	"datanode/internal/logging"
	"datanode/internal/service"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// newBlockCommand 通过传输协议访问一个 DataNode 上的块
func newBlockCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "block",
		Short: "Put, get or remove blocks on a running DataNode",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:50051", "DataNode address")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	newClient := func() *service.GrpcTransferClient {
		return service.NewTransferClient(timeout, logging.Discard())
	}
	// requestContext 限制单条命令的整体耗时，包括拨号与传输
	requestContext := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	put := &cobra.Command{
		Use:   "put <block_id> [file]",
		Short: "Upload a block from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 2 && args[1] != "-" {
				data, err = os.ReadFile(args[1])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return errors.Wrap(err, "failed to read block data")
			}

			client := newClient()
			defer client.Close()

			ctx, cancel := requestContext(cmd)
			defer cancel()

			ok, err := client.UploadBlock(ctx, addr, args[0], data)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf("datanode %s rejected block %s", addr, args[0])
			}
			cmd.PrintErrf("stored %s (%s)\n", args[0], humanize.IBytes(uint64(len(data))))
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <block_id> [file]",
		Short: "Download a block to a file or stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			ctx, cancel := requestContext(cmd)
			defer cancel()

			data, err := client.DownloadBlock(ctx, addr, args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 && args[1] != "-" {
				return os.WriteFile(args[1], data, 0644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	rm := &cobra.Command{
		Use:   "rm <block_id>",
		Short: "Delete a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			defer client.Close()

			ctx, cancel := requestContext(cmd)
			defer cancel()

			ok, err := client.DeleteBlock(ctx, addr, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf("block %s was not deleted", args[0])
			}
			return nil
		},
	}

	cmd.AddCommand(put, get, rm)
	return cmd
}
