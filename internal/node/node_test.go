package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/internal/service"
	"datanode/pb"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	config := &model.Config{}
	config.Server.ListenAddress = "127.0.0.1:0"
	config.Server.AdvertiseAddress = "127.0.0.1:50051"
	config.Server.DatanodeId = "datanode-test"
	config.Server.MaxMessageSize = 4 * 1024 * 1024
	config.Storage.DataRootPath = filepath.Join(t.TempDir(), "data")
	config.Storage.CapacityBytes = model.DefaultCapacity
	config.NameNode.Host = "127.0.0.1"
	config.NameNode.Port = 1
	config.NameNode.HeartbeatInterval = 3600
	config.NameNode.ConnectionTimeout = 5
	config.Registration.MaxAttempts = 10
	config.Shutdown.Timeout = 10
	config.Shutdown.GracePeriod = 1
	return config
}

func startNode(t *testing.T, opts Options) *Node {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	n, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	return n
}

func shutdownNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Shutdown(ctx))
}

func TestNodeServesTransfersAfterRegistrationExhausted(t *testing.T) {
	coordinator := service.NewMockCoordinator(logging.Discard())
	coordinator.SetRegisterFunc(func(int, model.NodeIdentity) (bool, error) { return false, nil })

	n := startNode(t, Options{Config: testConfig(t), Coordinator: coordinator})

	require.Eventually(t, func() bool {
		return coordinator.RegisterCalls() == 10 && n.Session().State() == model.StateDisconnected
	}, 10*time.Second, time.Millisecond)
	require.False(t, n.Session().Registered())

	transfer := service.NewTransferClient(5*time.Second, logging.Discard())
	defer transfer.Close()
	ctx := context.Background()
	addr := n.Addr().String()

	ok, err := transfer.UploadBlock(ctx, addr, "file/block_0", []byte("still serving"))
	require.NoError(t, err)
	require.True(t, ok)

	data, err := transfer.DownloadBlock(ctx, addr, "file/block_0")
	require.NoError(t, err)
	require.Equal(t, []byte("still serving"), data)

	ok, err = transfer.DeleteBlock(ctx, addr, "file/block_0")
	require.NoError(t, err)
	require.True(t, ok)

	shutdownNode(t, n)
	require.True(t, coordinator.Closed())
	require.Equal(t, 10, coordinator.RegisterCalls())
}

func TestNodeMockMode(t *testing.T) {
	n := startNode(t, Options{Config: testConfig(t), Mock: true})

	require.Eventually(t, n.Session().Registered, 5*time.Second, time.Millisecond)

	conn, err := grpc.Dial(n.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: pb.DataNodeService_ServiceDesc.ServiceName,
	})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	families, err := n.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["datanode_registered"])
	require.True(t, names["datanode_free_space_bytes"])
	require.True(t, names["datanode_blocks"])

	shutdownNode(t, n)
	require.Equal(t, model.StateDisconnected, n.Session().State())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNodeLogsStorageStatOnStart(t *testing.T) {
	config := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(config.Storage.DataRootPath, "files"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(config.Storage.DataRootPath, "files", "blk_0"), []byte("12345"), 0644))

	var out lockedBuffer
	logger := slog.New(logging.NewHandler(&out, slog.LevelInfo, "json"))
	n := startNode(t, Options{Config: config, Mock: true, Logger: logger})
	defer shutdownNode(t, n)

	var stat map[string]any
	scanner := bufio.NewScanner(bytes.NewBufferString(out.String()))
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["msg"] == "storage stat" {
			stat = entry
		}
	}
	require.NotNil(t, stat, out.String())
	require.Equal(t, float64(1), stat["block_count"])
	require.Equal(t, "5 B", stat["used"])
	require.Equal(t, "node", stat["component"])
}

func TestNodeRegisteredServices(t *testing.T) {
	n, err := New(Options{Config: testConfig(t), Mock: true, Logger: logging.Discard()})
	require.NoError(t, err)

	services := n.grpcServer.GetServiceInfo()
	require.Contains(t, services, pb.DataNodeService_ServiceDesc.ServiceName)
	require.Contains(t, services, healthpb.Health_ServiceDesc.ServiceName)
	// pb 未注册文件描述符，反射服务无法描述 DataNodeService，因此不注册
	require.NotContains(t, services, "grpc.reflection.v1alpha.ServerReflection")
	require.NotContains(t, services, "grpc.reflection.v1.ServerReflection")
}

func TestNodeStorageRootIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data", []byte("x"), 0644))

	config := testConfig(t)
	config.Storage.DataRootPath = "/data"
	_, err := New(Options{Config: config, Mock: true, Fs: fsys, Logger: logging.Discard()})
	require.Error(t, err)
}

func TestNodeListenFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	config := testConfig(t)
	config.Server.ListenAddress = lis.Addr().String()
	n, err := New(Options{Config: config, Mock: true, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Error(t, n.Start(context.Background()))
}

type recordingNameNode struct {
	pb.UnimplementedNameNodeServiceServer

	mu         sync.Mutex
	registered []*pb.DataNodeInfo
}

func (r *recordingNameNode) RegisterDataNode(_ context.Context, req *pb.RegisterDataNodeRequest) (*pb.RegisterDataNodeResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, req.GetDatanode())
	return &pb.RegisterDataNodeResponse{Success: true}, nil
}

func (r *recordingNameNode) Heartbeat(context.Context, *pb.HeartbeatRequest) (*pb.HeartbeatResponse, error) {
	return &pb.HeartbeatResponse{Success: true}, nil
}

func TestNodeRegistersWithNameNode(t *testing.T) {
	nn := &recordingNameNode{}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer()
	pb.RegisterNameNodeServiceServer(server, nn)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	config := testConfig(t)
	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	config.NameNode.Host = host
	config.NameNode.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	n := startNode(t, Options{Config: config})
	require.Eventually(t, n.Session().Registered, 10*time.Second, 5*time.Millisecond)

	nn.mu.Lock()
	require.Len(t, nn.registered, 1)
	info := nn.registered[0]
	nn.mu.Unlock()
	require.Equal(t, "datanode-test", info.GetId())
	require.Equal(t, "127.0.0.1:50051", info.GetAddress())
	require.Equal(t, int64(model.DefaultCapacity), info.GetCapacity())
	require.Equal(t, int64(model.DefaultCapacity), info.GetFreeSpace())

	shutdownNode(t, n)
}
