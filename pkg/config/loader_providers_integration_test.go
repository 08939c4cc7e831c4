package config

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/hashicorp/consul/api"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/agentlens/agentlens/pkg/config/provider"
)

// These tests exercise the remote config providers end-to-end and need
// live backends, e.g. docker compose -f dev/config-providers.yaml up -d.
// They only run when AGENTLENS_INTEGRATION_TEST=1 is set.

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("AGENTLENS_INTEGRATION_TEST") != "1" {
		t.Skip("Skipping integration tests (set AGENTLENS_INTEGRATION_TEST=1 to run)")
	}
}

func TestRemoteProviders_Integration(t *testing.T) {
	skipUnlessIntegration(t)

	tests := []struct {
		name     string
		provider provider.Type
		setup    func(t *testing.T) (string, func()) // returns key and cleanup func
	}{
		{
			name:     "Consul",
			provider: provider.TypeConsul,
			setup:    setupConsulTest,
		},
		{
			name:     "Etcd",
			provider: provider.TypeEtcd,
			setup:    setupEtcdTest,
		},
		{
			name:     "ZooKeeper",
			provider: provider.TypeZookeeper,
			setup:    setupZookeeperTest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, cleanup := tt.setup(t)
			defer cleanup()

			cfg, loader, err := LoadConfig(context.Background(), provider.ProviderConfig{
				Type:      tt.provider,
				Path:      key,
				Endpoints: integrationEndpoints(tt.provider),
			})
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}
			defer loader.Close()

			if cfg.Server.Port != 5050 {
				t.Errorf("expected port 5050, got %d", cfg.Server.Port)
			}
			if cfg.Logging.Level != "debug" {
				t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
			}
		})
	}
}

func TestRemoteProviders_Watch(t *testing.T) {
	skipUnlessIntegration(t)

	tests := []struct {
		name     string
		provider provider.Type
		setup    func(t *testing.T) (string, func())
		update   func(t *testing.T, key string)
	}{
		{
			name:     "Consul",
			provider: provider.TypeConsul,
			setup:    setupConsulTest,
			update:   updateConsulConfig,
		},
		{
			name:     "Etcd",
			provider: provider.TypeEtcd,
			setup:    setupEtcdTest,
			update:   updateEtcdConfig,
		},
		{
			name:     "ZooKeeper",
			provider: provider.TypeZookeeper,
			setup:    setupZookeeperTest,
			update:   updateZookeeperConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, cleanup := tt.setup(t)
			defer cleanup()

			p, err := provider.New(provider.ProviderConfig{
				Type:      tt.provider,
				Path:      key,
				Endpoints: integrationEndpoints(tt.provider),
			})
			if err != nil {
				t.Fatalf("failed to create provider: %v", err)
			}

			reloaded := make(chan *Config, 4)
			loader := NewLoader(p, WithOnChange(func(cfg *Config) {
				select {
				case reloaded <- cfg:
				default:
				}
			}))
			defer loader.Close()

			if _, err := loader.Load(context.Background()); err != nil {
				t.Fatalf("failed to load initial config: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				_ = loader.Watch(ctx)
			}()

			// Wait for the watcher to establish before updating.
			time.Sleep(500 * time.Millisecond)

			tt.update(t, key)

			select {
			case cfg := <-reloaded:
				if cfg.Server.Port != 5051 {
					t.Errorf("expected updated port 5051, got %d", cfg.Server.Port)
				}
			case <-time.After(5 * time.Second):
				t.Error("expected reload to be triggered, but it wasn't")
			}
		})
	}
}

// Helper functions

func integrationEndpoints(p provider.Type) []string {
	switch p {
	case provider.TypeConsul:
		return []string{"localhost:8500"}
	case provider.TypeEtcd:
		return []string{"localhost:2379"}
	case provider.TypeZookeeper:
		return []string{"localhost:2181"}
	default:
		return nil
	}
}

func integrationConfig(port int) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"server": map[string]interface{}{
			"host": "127.0.0.1",
			"port": port,
		},
		"logging": map[string]interface{}{
			"level": "debug",
		},
	})
	return data
}

func setupConsulTest(t *testing.T) (string, func()) {
	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		t.Skipf("Skipping Consul test - failed to create client: %v", err)
	}

	// Check if Consul is accessible
	if _, _, err := client.KV().Get("test", nil); err != nil {
		t.Skipf("Skipping Consul test - Consul not accessible: %v", err)
	}

	testKey := "agentlens/test/integration"
	if _, err := client.KV().Put(&api.KVPair{
		Key:   testKey,
		Value: integrationConfig(5050),
	}, nil); err != nil {
		t.Fatalf("failed to upload config: %v", err)
	}

	cleanup := func() {
		_, _ = client.KV().Delete(testKey, nil)
	}

	return testKey, cleanup
}

func updateConsulConfig(t *testing.T, key string) {
	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create consul client: %v", err)
	}

	if _, err := client.KV().Put(&api.KVPair{
		Key:   key,
		Value: integrationConfig(5051),
	}, nil); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
}

func setupEtcdTest(t *testing.T) (string, func()) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Skipf("Skipping Etcd test - failed to create client: %v", err)
	}

	// Check if Etcd is accessible
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_, err = client.Status(ctx, "localhost:2379")
	cancel()
	if err != nil {
		client.Close()
		t.Skipf("Skipping Etcd test - Etcd not accessible: %v", err)
	}

	testKey := "/agentlens/test/integration"
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	_, err = client.Put(ctx, testKey, string(integrationConfig(5050)))
	cancel()
	if err != nil {
		client.Close()
		t.Fatalf("failed to upload config: %v", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = client.Delete(ctx, testKey)
		cancel()
		client.Close()
	}

	return testKey, cleanup
}

func updateEtcdConfig(t *testing.T, key string) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create etcd client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Put(ctx, key, string(integrationConfig(5051))); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
}

func setupZookeeperTest(t *testing.T) (string, func()) {
	conn, _, err := zk.Connect([]string{"localhost:2181"}, 10*time.Second)
	if err != nil {
		t.Skipf("Skipping ZooKeeper test - failed to connect: %v", err)
	}

	testKey := "/agentlens/test/integration"
	if err := createZookeeperNode(conn, testKey, integrationConfig(5050)); err != nil {
		conn.Close()
		t.Skipf("Skipping ZooKeeper test - failed to create node: %v", err)
	}

	cleanup := func() {
		_ = conn.Delete(testKey, -1)
		conn.Close()
	}

	return testKey, cleanup
}

func updateZookeeperConfig(t *testing.T, key string) {
	conn, _, err := zk.Connect([]string{"localhost:2181"}, 10*time.Second)
	if err != nil {
		t.Fatalf("failed to connect to zookeeper: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Set(key, integrationConfig(5051), -1); err != nil {
		t.Fatalf("failed to update zookeeper node: %v", err)
	}
}

// createZookeeperNode creates the node and any missing parents.
func createZookeeperNode(conn *zk.Conn, path string, data []byte) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for i, part := range parts {
		current += "/" + part
		nodeData := []byte{}
		if i == len(parts)-1 {
			nodeData = data
		}
		_, err := conn.Create(current, nodeData, 0, zk.WorldACL(zk.PermAll))
		if err == zk.ErrNodeExists {
			if i == len(parts)-1 {
				if _, err := conn.Set(current, data, -1); err != nil {
					return err
				}
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
