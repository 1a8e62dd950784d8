package amqp

import (
	"encoding/json"
	"time"
)

// IngestCompletedMessage announces that an ingestion run committed. The
// snapshot worker reacts by rebuilding export files; the payload carries
// just enough to log what happened, consumers re-read the database.
type IngestCompletedMessage struct {
	Year      int       `json:"year"`
	Facts     int       `json:"facts"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewIngestCompletedMessage(year, facts int, source string) *IngestCompletedMessage {
	return &IngestCompletedMessage{
		Year:      year,
		Facts:     facts,
		Source:    source,
		Timestamp: time.Now(),
	}
}

func (m *IngestCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IngestCompletedMessageFromJSON(data []byte) (*IngestCompletedMessage, error) {
	var msg IngestCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
