// Package test holds the integration tests of wedcards against real Postgres and
// Kafka containers. They are skipped with -short.
package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/api"
	"github.com/relabs-tech/wedcards/core/client"
	"github.com/relabs-tech/wedcards/core/csql"
	"github.com/relabs-tech/wedcards/core/notify"
	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/rsvp"
)

const eventsTopic = "wedcards.events"

// notification is a change event as a core.Notifier sees it
type notification struct {
	Resource  string
	Operation core.Operation
	Payload   []byte
}

// recorder keeps the notifications in memory
type recorder struct {
	mu     sync.Mutex
	events []notification
}

func (r *recorder) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{Resource: resource, Operation: operation, Payload: payload})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) operations(resource string) []core.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ops []core.Operation
	for _, e := range r.events {
		if e.Resource == resource {
			ops = append(ops, e.Operation)
		}
	}
	return ops
}

// IntegrationTestSuite starts Postgres and Kafka and wires the stores, the
// notifiers and the API the way the service does
type IntegrationTestSuite struct {
	suite.Suite

	network           testcontainers.Network
	postgresContainer testcontainers.Container
	zookeeper         testcontainers.Container
	kafkaContainer    testcontainers.Container
	kafkaConn         *kafka.Conn
	kafkaAddr         string

	db        *csql.DB
	kafka     *notify.Kafka
	recorder  *recorder
	contents  *ordering.Manager
	templates *ordering.Manager
	forms     *rsvp.Store
	router    *mux.Router
	client    client.Client
}

func (s *IntegrationTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("integration tests need docker, skipped with -short")
	}
	ctx := context.Background()

	networkName := "wedcards-test-network_" + fmt.Sprintf("%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	postgresUser, postgresPassword, postgresDB := "testuser", "testpass", "testdb"
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"postgres"}},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.zookeeper, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-zookeeper:7.5.0",
			ExposedPorts: []string{"2181/tcp"},
			Env: map[string]string{
				"ZOOKEEPER_CLIENT_PORT": "2181",
				"ZOOKEEPER_TICK_TIME":   "2000",
			},
			WaitingFor:     wait.ForListeningPort("2181/tcp"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
		},
		Started: true,
	})
	s.Require().NoError(err)

	s.kafkaContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-kafka:7.5.0",
			ExposedPorts: []string{"9092:9092/tcp"},
			Env: map[string]string{
				"KAFKA_BROKER_ID":                        "1",
				"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
				"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,EXTERNAL://0.0.0.0:9093",
				"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,EXTERNAL://kafka:9093",
				"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,EXTERNAL:PLAINTEXT",
				"KAFKA_INTER_BROKER_LISTENER_NAME":       "EXTERNAL",
				"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			},
			WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"kafka"}},
		},
		Started: true,
	})
	s.Require().NoError(err)

	kafkaHost, err := s.kafkaContainer.Host(ctx)
	s.Require().NoError(err)
	kafkaPort, err := s.kafkaContainer.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", kafkaHost, kafkaPort.Port())

	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             eventsTopic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	s.db = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "wedcards_test")

	s.recorder = &recorder{}
	s.kafka = notify.NewKafka(&notify.KafkaBuilder{Brokers: []string{s.kafkaAddr}, Topic: eventsTopic})
	notifiers := notify.Multi{notify.Log{}, s.recorder, s.kafka}

	s.contents, err = ordering.New(&ordering.Builder{DB: s.db, Notifier: notifiers})
	s.Require().NoError(err)
	s.templates, err = ordering.New(&ordering.Builder{DB: s.db, Resource: "template", Group: "catalog", Notifier: notifiers})
	s.Require().NoError(err)
	s.forms, err = rsvp.New(&rsvp.Builder{DB: s.db, Notifier: notifiers})
	s.Require().NoError(err)

	s.router = mux.NewRouter()
	_, err = api.New(&api.Builder{
		Router:    s.router,
		Contents:  s.contents,
		Forms:     s.forms,
		Templates: s.templates,
		// the suite submits many forms from the same address
		RSVPRate:  1000,
		RSVPBurst: 1000,
		Ready:     s.db.PingContext,
	})
	s.Require().NoError(err)
	s.client = client.NewWithRouter(s.router)
}

func (s *IntegrationTestSuite) SetupTest() {
	if s.recorder != nil {
		s.recorder.reset()
	}
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.kafka != nil {
		s.NoError(s.kafka.Close())
	}
	if s.kafkaConn != nil {
		s.kafkaConn.Close()
	}
	if s.db != nil {
		s.db.ClearSchema()
		s.db.Close()
	}
	for _, c := range []testcontainers.Container{s.kafkaContainer, s.zookeeper, s.postgresContainer} {
		if c != nil {
			s.NoError(c.Terminate(ctx))
		}
	}
	if s.network != nil {
		s.NoError(s.network.Remove(ctx))
	}
}

// positions returns the positions of the items
func positions(items []ordering.Item) []int {
	positions := make([]int, 0, len(items))
	for _, it := range items {
		positions = append(positions, it.Position)
	}
	return positions
}
