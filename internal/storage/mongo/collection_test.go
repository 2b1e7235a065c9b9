package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yndnr/sessiondb/internal/storage"
	"github.com/yndnr/sessiondb/internal/storage/storagetest"
)

func TestConfig_ConnectionURI(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"defaults", Config{}, "mongodb://127.0.0.1:27017"},
		{"host port", Config{Host: "db.internal", Port: 27018}, "mongodb://db.internal:27018"},
		{"ipv6", Config{Host: "::1", Port: 27017}, "mongodb://[::1]:27017"},
		{"uri wins", Config{URI: "mongodb://u:p@h/db", Host: "ignored"}, "mongodb://u:p@h/db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionURI(); got != tt.want {
				t.Errorf("ConnectionURI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_ClientOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoReconnect = false
	cfg.ConnectTimeout = 3 * time.Second

	opts := cfg.ClientOptions()
	if opts.RetryReads == nil || *opts.RetryReads {
		t.Error("RetryReads should be disabled without auto reconnect")
	}
	if opts.RetryWrites == nil || *opts.RetryWrites {
		t.Error("RetryWrites should be disabled without auto reconnect")
	}
	if opts.ServerSelectionTimeout == nil || *opts.ServerSelectionTimeout != 3*time.Second {
		t.Error("ServerSelectionTimeout should follow ConnectTimeout")
	}
}

func TestConnector_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 1
	cfg.ConnectTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := (Connector{Config: cfg}).Connect(ctx); err == nil {
		t.Error("Connect() to a closed port should fail")
	}
}

// TestCollection_Conformance runs against a live server when
// SESSIONDB_TEST_MONGO_URI is set.
func TestCollection_Conformance(t *testing.T) {
	uri := os.Getenv("SESSIONDB_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SESSIONDB_TEST_MONGO_URI not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Collection {
		cfg := DefaultConfig()
		cfg.URI = uri
		cfg.Database = "sessiondb_test"
		cfg.Collection = "c" + primitive.NewObjectID().Hex()

		c, err := Connector{Config: cfg}.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		t.Cleanup(func() { dropCollection(cfg) })
		return c
	})
}

func dropCollection(cfg Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, cfg.ClientOptions())
	if err != nil {
		return
	}
	defer client.Disconnect(ctx)
	_ = client.Database(cfg.Database).Collection(cfg.Collection).Drop(ctx)
}
