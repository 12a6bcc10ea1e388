package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/internal/node"
	"datanode/pb"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)
	require.NoError(t, validateConfig(config))

	require.Equal(t, "0.0.0.0:50051", config.Server.ListenAddress)
	require.Equal(t, "localhost:50051", config.Server.AdvertiseAddress)
	require.Equal(t, "datanode1", config.Server.DatanodeId)
	require.Equal(t, "/tmp/datanode", config.Storage.DataRootPath)
	require.Equal(t, int64(model.DefaultCapacity), config.Storage.CapacityBytes)
	require.Equal(t, "localhost", config.NameNode.Host)
	require.Equal(t, 50070, config.NameNode.Port)
	require.Equal(t, 5, config.NameNode.HeartbeatInterval)
	require.Equal(t, 30, config.NameNode.KeepaliveTime)
	require.Equal(t, 10, config.Registration.MaxAttempts)
	require.Equal(t, 1, config.Registration.BaseDelay)
	require.Equal(t, 30, config.Registration.MaxDelay)
	require.Equal(t, 4*1024*1024, config.Server.MaxMessageSize)
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_address: "127.0.0.1:6000"
  datanode_id: "dn-7"
storage:
  data_root_path: "/srv/blocks"
namenode:
  host: "nn.internal"
  port: 9000
  heartbeat_interval: 2
registration:
  max_attempts: 3
logging:
  level: "debug"
  format: "json"
`), 0644))

	config, err := loadConfig(path, true)
	require.NoError(t, err)
	require.NoError(t, validateConfig(config))

	require.Equal(t, "127.0.0.1:6000", config.Server.ListenAddress)
	require.Equal(t, "localhost:6000", config.Server.AdvertiseAddress)
	require.Equal(t, "dn-7", config.Server.DatanodeId)
	require.Equal(t, "/srv/blocks", config.Storage.DataRootPath)
	require.Equal(t, "nn.internal", config.NameNode.Host)
	require.Equal(t, 9000, config.NameNode.Port)
	require.Equal(t, 2, config.NameNode.HeartbeatInterval)
	require.Equal(t, 3, config.Registration.MaxAttempts)
	require.Equal(t, "json", config.Logging.Format)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))
	_, err := loadConfig(path, true)
	require.Error(t, err)
}

func TestApplyArgs(t *testing.T) {
	config := &model.Config{}
	require.NoError(t, applyArgs(config, []string{"50052", "/data/dn2", "datanode2", "10.0.0.1", "50071"}))
	require.NoError(t, validateConfig(config))

	require.Equal(t, "0.0.0.0:50052", config.Server.ListenAddress)
	require.Equal(t, "localhost:50052", config.Server.AdvertiseAddress)
	require.Equal(t, "/data/dn2", config.Storage.DataRootPath)
	require.Equal(t, "datanode2", config.Server.DatanodeId)
	require.Equal(t, "10.0.0.1", config.NameNode.Host)
	require.Equal(t, 50071, config.NameNode.Port)
}

func TestApplyArgsInvalidPort(t *testing.T) {
	for _, args := range [][]string{
		{"not-a-port"},
		{"0"},
		{"70000"},
		{"50051", "/d", "dn", "host", "x"},
	} {
		require.Error(t, applyArgs(&model.Config{}, args), "%v", args)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	for name, mutate := range map[string]func(*model.Config){
		"bad listen address": func(c *model.Config) { c.Server.ListenAddress = "no-port" },
		"negative interval":  func(c *model.Config) { c.NameNode.HeartbeatInterval = -1 },
		"max below base":     func(c *model.Config) { c.Registration.BaseDelay = 10; c.Registration.MaxDelay = 5 },
		"unknown log level":  func(c *model.Config) { c.Logging.Level = "loud" },
		"tiny messages":      func(c *model.Config) { c.Server.MaxMessageSize = 1024 },
		"namenode port":      func(c *model.Config) { c.NameNode.Port = 70000 },
	} {
		t.Run(name, func(t *testing.T) {
			config := &model.Config{}
			mutate(config)
			require.Error(t, validateConfig(config))
		})
	}
}

func TestRootCommandRejectsTooManyArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"1", "2", "3", "4", "5", "6"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.Error(t, cmd.Execute())
}

func TestBlockCommands(t *testing.T) {
	config := &model.Config{}
	config.Server.ListenAddress = "127.0.0.1:0"
	config.Storage.DataRootPath = filepath.Join(t.TempDir(), "data")
	require.NoError(t, validateConfig(config))

	n, err := node.New(node.Options{Config: config, Mock: true, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, n.Shutdown(ctx))
	}()
	addr := n.Addr().String()

	execute := func(stdin []byte, args ...string) (string, error) {
		cmd := newRootCommand()
		var stdout bytes.Buffer
		cmd.SetIn(bytes.NewReader(stdin))
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"block"}, append(args, "--addr", addr)...))
		err := cmd.Execute()
		return stdout.String(), err
	}

	_, err = execute([]byte("hello block"), "put", "files/a/block_0")
	require.NoError(t, err)

	out, err := execute(nil, "get", "files/a/block_0")
	require.NoError(t, err)
	require.Equal(t, "hello block", out)

	src := filepath.Join(t.TempDir(), "src.bin")
	dst := filepath.Join(t.TempDir(), "dst.bin")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{7}, 300*1024), 0644))
	_, err = execute(nil, "put", "big", src)
	require.NoError(t, err)
	_, err = execute(nil, "get", "big", dst)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Len(t, got, 300*1024)

	_, err = execute(nil, "rm", "files/a/block_0")
	require.NoError(t, err)
	_, err = execute(nil, "get", "files/a/block_0")
	require.Error(t, err)
	_, err = execute(nil, "rm", "files/a/block_0")
	require.Error(t, err)
}

// stalledDataNode 接受请求但直到调用方放弃前都不应答
type stalledDataNode struct {
	pb.UnimplementedDataNodeServiceServer
}

func (stalledDataNode) ReadBlock(_ *pb.ReadBlockRequest, stream pb.DataNodeService_ReadBlockServer) error {
	<-stream.Context().Done()
	return stream.Context().Err()
}

func (stalledDataNode) DeleteBlock(ctx context.Context, _ *pb.DeleteBlockRequest) (*pb.DeleteBlockResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBlockCommandsHonorTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer()
	pb.RegisterDataNodeServiceServer(server, stalledDataNode{})
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	for _, args := range [][]string{{"get", "blk"}, {"rm", "blk"}} {
		cmd := newRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"block"}, append(args, "--addr", lis.Addr().String(), "--timeout", "300ms")...))

		done := make(chan error, 1)
		go func() { done <- cmd.Execute() }()
		select {
		case err := <-done:
			require.Error(t, err, "%v", args)
		case <-time.After(10 * time.Second):
			t.Fatalf("%v did not honor --timeout", args)
		}
	}
}
