package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Brokers   []string `koanf:"brokers"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default oldest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	RequiredAcks int16 `koanf:"required_acks"` // 0,1,-1

	// Buffer bounds the messages consumed ahead of the reader.
	Buffer int `koanf:"buffer"`
	// IdleTimeout ends a read once no message arrived for this long.
	// Zero reads until the context ends.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	CommitInt   time.Duration `koanf:"commit_interval"`
}

func ApplyDefaults(c *Config) {
	if c.GroupID == "" {
		c.GroupID = "adi"
	}
	if c.StartFrom == "" {
		c.StartFrom = "oldest"
	}
	if c.Version == "" {
		c.Version = sarama.DefaultVersion.String()
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int16(sarama.WaitForAll)
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.CommitInt == 0 {
		c.CommitInt = 5 * time.Second
	}
}

func (c Config) sarama() (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.RequiredAcks(c.RequiredAcks)
	if c.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if c.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = c.SASLUser, c.SASLPass
	}
	switch c.StartFrom {
	case "newest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	return sc, nil
}
