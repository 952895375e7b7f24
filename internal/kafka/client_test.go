package kafka

import (
	"sync"
	"testing"

	"github.com/IBM/sarama"
)

// recordingMetrics counts calls per metric.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (m *recordingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *recordingMetrics) IncMessagesConsumed(string, int32) { m.inc("consumed") }
func (m *recordingMetrics) IncMessagesProduced(_ string, status string) {
	m.inc("produced_" + status)
}
func (m *recordingMetrics) IncRebalances(string)                        { m.inc("rebalance") }
func (m *recordingMetrics) IncOffsetCommits(string, int32, string)      { m.inc("commit") }
func (m *recordingMetrics) ObserveRebalanceDuration(string, float64)    {}
func (m *recordingMetrics) SetPartitionsAssigned(string, float64)       {}
func (m *recordingMetrics) IncNodeRecords(_ string, port string)        { m.inc("node_" + port) }

func TestConfigureSecurity(t *testing.T) {
	tests := []struct {
		name          string
		config        ClientConfig
		wantErr       bool
		wantSASL      bool
		wantTLS       bool
		wantMechanism sarama.SASLMechanism
	}{
		{
			name:   "plaintext default",
			config: ClientConfig{},
		},
		{
			name:   "explicit plaintext",
			config: ClientConfig{SecurityProtocol: "PLAINTEXT"},
		},
		{
			name:    "ssl",
			config:  ClientConfig{SecurityProtocol: "SSL"},
			wantTLS: true,
		},
		{
			name: "sasl plain",
			config: ClientConfig{
				SecurityProtocol: "SASL_PLAINTEXT",
				SASLMechanism:    "PLAIN",
				SASLUsername:     "user",
				SASLPassword:     "secret",
			},
			wantSASL:      true,
			wantMechanism: sarama.SASLTypePlaintext,
		},
		{
			name: "sasl ssl scram 512",
			config: ClientConfig{
				SecurityProtocol: "SASL_SSL",
				SASLMechanism:    "SCRAM-SHA-512",
				SASLUsername:     "user",
				SASLPassword:     "secret",
			},
			wantSASL:      true,
			wantTLS:       true,
			wantMechanism: sarama.SASLTypeSCRAMSHA512,
		},
		{
			name: "msk iam",
			config: ClientConfig{
				SecurityProtocol: "SASL_SSL",
				SASLMechanism:    "AWS_MSK_IAM",
				AWSRegion:        "us-east-1",
			},
			wantSASL:      true,
			wantTLS:       true,
			wantMechanism: sarama.SASLTypeOAuth,
		},
		{
			name: "msk iam without region",
			config: ClientConfig{
				SecurityProtocol: "SASL_SSL",
				SASLMechanism:    "AWS_MSK_IAM",
			},
			wantErr: true,
		},
		{
			name:    "unknown mechanism",
			config:  ClientConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "GSSAPI"},
			wantErr: true,
		},
		{
			name:    "unknown protocol",
			config:  ClientConfig{SecurityProtocol: "QUIC"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := sarama.NewConfig()
			err := configureSecurity(config, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configureSecurity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if config.Net.SASL.Enable != tt.wantSASL {
				t.Errorf("SASL.Enable = %v, want %v", config.Net.SASL.Enable, tt.wantSASL)
			}
			if config.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS.Enable = %v, want %v", config.Net.TLS.Enable, tt.wantTLS)
			}
			if tt.wantSASL && config.Net.SASL.Mechanism != tt.wantMechanism {
				t.Errorf("SASL.Mechanism = %v, want %v", config.Net.SASL.Mechanism, tt.wantMechanism)
			}
		})
	}
}

func TestConfigureSecurity_ScramGenerator(t *testing.T) {
	config := sarama.NewConfig()
	err := configureSecurity(config, ClientConfig{
		SecurityProtocol: "SASL_PLAINTEXT",
		SASLMechanism:    "SCRAM-SHA-256",
		SASLUsername:     "user",
		SASLPassword:     "secret",
	})
	if err != nil {
		t.Fatalf("configureSecurity() error = %v", err)
	}
	if config.Net.SASL.SCRAMClientGeneratorFunc == nil {
		t.Fatal("SCRAMClientGeneratorFunc not set")
	}
	if _, ok := config.Net.SASL.SCRAMClientGeneratorFunc().(*scramClient); !ok {
		t.Error("generator does not return *scramClient")
	}
}

func TestOffsetInitial(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"earliest", sarama.OffsetOldest},
		{"latest", sarama.OffsetNewest},
		{"", sarama.OffsetNewest},
	}

	for _, tt := range tests {
		if got := offsetInitial(tt.in); got != tt.want {
			t.Errorf("offsetInitial(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewSaramaConfig(t *testing.T) {
	config, err := newSaramaConfig(ClientConfig{BootstrapServers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("newSaramaConfig() error = %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
