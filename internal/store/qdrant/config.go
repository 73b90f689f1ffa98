package qdrant

import (
	"fmt"
	"time"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host    string        `json:"host"`
	Port    int           `json:"port"`
	APIKey  string        `json:"api_key"`
	UseTLS  bool          `json:"use_tls"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns settings for a local Qdrant instance.
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    6333,
		Timeout: 10 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// BaseURL builds the HTTP base URL for the REST API.
func (c *Config) BaseURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Distance metrics supported for collections.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// CollectionConfig describes a vector collection.
type CollectionConfig struct {
	Name       string   `json:"name"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
}

func (c *CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector_size must be positive")
	}
	if c.Distance == "" {
		return fmt.Errorf("distance is required")
	}
	return nil
}

// SearchParams configures a similarity search request.
type SearchParams struct {
	Limit          int
	ScoreThreshold float32
	Filter         map[string]interface{}
	WithPayload    bool
	WithVectors    bool
}

// MatchFilter builds a Qdrant filter matching payload fields exactly. Used
// for the mandatory namespace restriction and optional section scoping.
func MatchFilter(conds ...FieldMatch) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(conds))
	for _, c := range conds {
		must = append(must, map[string]interface{}{
			"key":   c.Key,
			"match": map[string]interface{}{"value": c.Value},
		})
	}
	return map[string]interface{}{"must": must}
}

// FieldMatch is one exact-match condition on a payload field.
type FieldMatch struct {
	Key   string
	Value interface{}
}

// AnyFilter adds a match-any condition on a keyword array field.
func AnyFilter(base map[string]interface{}, key string, values []string) map[string]interface{} {
	must, _ := base["must"].([]map[string]interface{})
	must = append(must, map[string]interface{}{
		"key":   key,
		"match": map[string]interface{}{"any": values},
	})
	base["must"] = must
	return base
}
