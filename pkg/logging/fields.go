package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component names the engine component emitting the line.
func Component(name string) Field {
	return String("component", name)
}

// Domain field helpers

// NodeID identifies a network node.
func NodeID(id string) Field {
	return String("node_id", id)
}

// CPTID identifies a conditional probability table record.
func CPTID(id string) Field {
	return String("cpt_id", id)
}

// CPTVersion records the version of a table record.
func CPTVersion(v int) Field {
	return Int("cpt_version", v)
}

// NetworkHash identifies a compiled network by its spec hash.
func NetworkHash(hash string) Field {
	return String("network_hash", hash)
}

// Typology names a detection scenario template.
func Typology(name string) Field {
	return String("typology", name)
}
