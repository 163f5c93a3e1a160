package kafka

import (
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/MolForge/pkg/errors"
)

// SASLConfig carries broker credentials.  An empty Mechanism disables SASL.
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

func (c SASLConfig) mechanism() (sasl.Mechanism, error) {
	switch c.Mechanism {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: c.Username, Password: c.Password}, nil
	case "SCRAM-SHA-256":
		m, err := scram.Mechanism(scram.SHA256, c.Username, c.Password)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMessageQueueError, "failed to create SASL mechanism")
		}
		return m, nil
	case "SCRAM-SHA-512":
		m, err := scram.Mechanism(scram.SHA512, c.Username, c.Password)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMessageQueueError, "failed to create SASL mechanism")
		}
		return m, nil
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unsupported SASL mechanism %q", c.Mechanism)
	}
}
