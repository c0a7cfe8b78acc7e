// Package mutlog streams proofreading mutations to kafka so downstream
// consumers can audit or replay a review.  Logging is best-effort: a failed
// send is appended to a local fallback file and never blocks a mutation.
package mutlog

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/proofread"
)

// MaxMessageSize is the max message size in bytes for a kafka message.
const MaxMessageSize = 980 * proofread.Kilo

// Config describes kafka servers for mutation logging plus a local file
// into which failed messages are stored.
type Config struct {
	Servers   []string `toml:"servers"`
	Topic     string   `toml:"topic"`
	FailedLog string   `toml:"failed_log"`
}

// Mutation is one logged proofreading operation.
type Mutation struct {
	Action     string       `json:"action"`
	MutationID uint64       `json:"mutation_id"`
	Session    string       `json:"uuid"`
	Timestamp  string       `json:"timestamp"`
	Edge       *graph.Edge  `json:"edge,omitempty"`
	Edges      []graph.Edge `json:"edges,omitempty"`
	Bodies     []uint64     `json:"bodies,omitempty"`
}

// Log publishes mutation records to a kafka topic.  A nil *Log is valid and
// drops all records, so callers need not special-case an unconfigured log.
type Log struct {
	producer sarama.AsyncProducer
	topic    string

	failedPath string
	failedMu   sync.Mutex

	mutID uint64
}

// New connects to the configured kafka servers.  If no servers are
// configured it returns a nil log and mutation logging is disabled.
func New(c Config) (*Log, error) {
	if len(c.Servers) == 0 {
		proofread.Infof("No kafka servers specified.  Mutation logging disabled.\n")
		return nil, nil
	}
	topic := c.Topic
	if topic == "" {
		topic = "proofread-mutations"
	}

	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = MaxMessageSize
	producer, err := sarama.NewAsyncProducer(c.Servers, config)
	if err != nil {
		return nil, err
	}
	l := &Log{
		producer:   producer,
		topic:      topic,
		failedPath: c.FailedLog,
	}
	go func() {
		for err := range producer.Errors() {
			proofread.Errorf("error on kafka send: %v\n", err)
			value, _ := err.Msg.Value.Encode()
			l.storeFailedMsg(value)
		}
	}()
	proofread.Infof("Kafka topic for proofreading mutations: %s\n", topic)
	return l, nil
}

// LogMutation assigns the mutation a monotonic id and queues it for
// publication.  Serialization problems are logged, never returned.
func (l *Log) LogMutation(m Mutation) {
	if l == nil {
		return
	}
	m.MutationID = atomic.AddUint64(&l.mutID, 1)
	m.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	jsonmsg, err := json.Marshal(m)
	if err != nil {
		proofread.Errorf("unable to marshal mutation for kafka logging: %v\n", err)
		return
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
	l.producer.Input() <- &sarama.ProducerMessage{
		Topic: l.topic,
		Value: sarama.ByteEncoder(jsonmsg),
		Key:   timeKey,
	}
}

// storeFailedMsg appends the message to the local fallback file so no
// mutation record is silently lost.
func (l *Log) storeFailedMsg(msg []byte) {
	if l.failedPath == "" {
		proofread.Criticalf("unable to store failed kafka message because no fallback file is configured\n")
		return
	}
	l.failedMu.Lock()
	defer l.failedMu.Unlock()
	f, err := os.OpenFile(l.failedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		proofread.Criticalf("unable to open kafka fallback file %s: %v\n", l.failedPath, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(msg, '\n')); err != nil {
		proofread.Criticalf("unable to store failed kafka message: %v\n", err)
	}
}

// Shutdown flushes the kafka queue before stopping.
func (l *Log) Shutdown() {
	if l == nil {
		proofread.Infof("Kafka producer was nil so unnecessary to close.\n")
		return
	}
	if err := l.producer.Close(); err != nil {
		proofread.Errorf("Kafka producer had error on close: %v\n", err)
	} else {
		proofread.Infof("Successfully shut down kafka producer.\n")
	}
}
