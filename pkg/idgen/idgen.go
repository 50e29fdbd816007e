package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// IDGenerator is the interface for generating unique IDs
type IDGenerator interface {
	// NextID generates a new unique ID
	NextID() (int64, error)
}

// SonyflakeGenerator implements IDGenerator using sonyflake
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineID uint16) (*SonyflakeGenerator, error) {
	st := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	}

	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}

	return &SonyflakeGenerator{sf: sf}, nil
}

// NextID generates a new unique ID
func (g *SonyflakeGenerator) NextID() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, fmt.Errorf("failed to generate id: %w", err)
	}
	return int64(id), nil
}

// Global default generator
var (
	defaultGenerator IDGenerator
	once             sync.Once
	initErr          error
)

// SetDefaultGenerator sets the default ID generator
func SetDefaultGenerator(gen IDGenerator) {
	defaultGenerator = gen
}

// GetDefaultGenerator returns the default ID generator
// If not set, creates a SonyflakeGenerator with machineID 1
func GetDefaultGenerator() (IDGenerator, error) {
	once.Do(func() {
		if defaultGenerator == nil {
			defaultGenerator, initErr = NewSonyflakeGenerator(1)
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return defaultGenerator, nil
}

// NextID generates a new ID using the default generator
func NextID() (int64, error) {
	gen, err := GetDefaultGenerator()
	if err != nil {
		return 0, err
	}
	return gen.NextID()
}

// NextIDString is NextID rendered in base 10.
func NextIDString() (string, error) {
	id, err := NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// NewClientMsgId returns a correlation id for an outbound message.
func NewClientMsgId() string {
	return uuid.NewString()
}
