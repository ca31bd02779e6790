package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyUUIDv4 generates random identifiers.
	StrategyUUIDv4 Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var (
	defaultGenerator = &Generator{strategy: StrategyUUIDv4}
)

// Generator produces identifiers for research tasks and log correlation.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.setStrategy(strategy)
}

// ParseStrategy maps a config value ("uuidv4", "uuidv7") to a Strategy.
func ParseStrategy(raw string) Strategy {
	switch raw {
	case "uuidv7", "v7":
		return StrategyUUIDv7
	default:
		return StrategyUUIDv4
	}
}

func (g *Generator) setStrategy(strategy Strategy) {
	g.mu.Lock()
	g.strategy = strategy
	g.mu.Unlock()
}

// NewTaskID generates a new research task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("research")
}

// NewLogID generates an identifier used to correlate log lines of one request.
func NewLogID() string {
	return defaultGenerator.newIdentifier("log")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		body = uuid.NewString()
	default:
		body = uuid.NewString()
	}

	return fmt.Sprintf("%s-%s", prefix, body)
}
