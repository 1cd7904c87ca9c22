package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Config struct {
	Hosts             []string
	Keyspace          string
	Consistency       string
	Timeout           time.Duration
	Username          string
	Password          string
	ReplicationFactor int
}

func (c Config) consistency() (gocql.Consistency, error) {
	if c.Consistency == "" {
		return gocql.Quorum, nil
	}
	return gocql.ParseConsistencyWrapper(strings.ToUpper(c.Consistency))
}

func (c Config) cluster(keyspace string) (*gocql.ClusterConfig, error) {
	consistency, err := c.consistency()
	if err != nil {
		return nil, err
	}
	cluster := gocql.NewCluster(c.Hosts...)
	cluster.Timeout = c.Timeout
	cluster.Keyspace = keyspace
	cluster.Consistency = consistency
	if c.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: c.Username, Password: c.Password}
		cluster.ConnectTimeout = c.Timeout
	}
	return cluster, nil
}

// NewSession ensures the schema exists and returns a session bound to the keyspace.
func NewSession(ctx context.Context, cfg Config, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.Keyspace) {
		return nil, fmt.Errorf("scylla: invalid keyspace name %q", cfg.Keyspace)
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	baseCluster, err := cfg.cluster("")
	if err != nil {
		return nil, err
	}
	baseSession, err := baseCluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect: %w", err)
	}
	defer baseSession.Close()
	if err := ensureKeyspace(ctx, baseSession, cfg); err != nil {
		return nil, err
	}

	cluster, err := cfg.cluster(cfg.Keyspace)
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect to keyspace %s: %w", cfg.Keyspace, err)
	}
	if err := ensureTables(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	}
	return session, nil
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg Config) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.Keyspace, cfg.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla: create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session) error {
	tables := map[string]string{
		"messages": `
CREATE TABLE IF NOT EXISTS messages (
	conversation_id text,
	seq timeuuid,
	message_id text,
	sender_id text,
	content text,
	attachment_url text,
	structured boolean,
	deleted boolean,
	read boolean,
	language text,
	created_at timestamp,
	edited_at timestamp,
	version int,
	PRIMARY KEY (conversation_id, seq)
) WITH CLUSTERING ORDER BY (seq DESC)`,
		"message_ids": `
CREATE TABLE IF NOT EXISTS message_ids (
	conversation_id text,
	message_id text,
	seq timeuuid,
	PRIMARY KEY (conversation_id, message_id)
)`,
	}
	for name, cql := range tables {
		if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla: create %s table: %w", name, err)
		}
	}
	return nil
}
