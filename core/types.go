package core

import (
	"bytes"
	"fmt"
	"io"
)

// CompressionType identifies the compression algorithm used.
// This will be stored on disk to know how to decompress.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor defines the interface for compression and decompression algorithms.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// InitializationTime is the reserved timestamp of a location's baseline record.
const InitializationTime int64 = 0

// InteractionKind is the closed set of block interactions that get recorded.
type InteractionKind byte

const (
	InteractionBroken InteractionKind = iota + 1
	InteractionExploded
	InteractionPlaced
	InteractionInitialised
)

// Code returns the single-character wire code stored in values.
func (k InteractionKind) Code() string {
	switch k {
	case InteractionBroken:
		return "1"
	case InteractionExploded:
		return "2"
	case InteractionPlaced:
		return "3"
	case InteractionInitialised:
		return "4"
	default:
		return ""
	}
}

func (k InteractionKind) String() string {
	switch k {
	case InteractionBroken:
		return "broken"
	case InteractionExploded:
		return "exploded"
	case InteractionPlaced:
		return "placed"
	case InteractionInitialised:
		return "initialised"
	default:
		return fmt.Sprintf("interaction(%d)", byte(k))
	}
}

// Valid reports whether k is one of the known interaction kinds.
func (k InteractionKind) Valid() bool {
	return k >= InteractionBroken && k <= InteractionInitialised
}

// ParseInteractionCode is the inverse of InteractionKind.Code.
func ParseInteractionCode(code string) (InteractionKind, error) {
	switch code {
	case "1":
		return InteractionBroken, nil
	case "2":
		return InteractionExploded, nil
	case "3":
		return InteractionPlaced, nil
	case "4":
		return InteractionInitialised, nil
	}
	return 0, &DecodeError{Field: "interaction", Value: code, Message: "unknown interaction code"}
}

// ParseInteractionName maps the lowercase names used by the ingest protocol
// and the command line tools.
func ParseInteractionName(name string) (InteractionKind, error) {
	for k := InteractionBroken; k <= InteractionInitialised; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown interaction %q", name)
}

// ActorKind discriminates the Actor union.
type ActorKind byte

const (
	ActorNone ActorKind = iota
	ActorNonPlayerEntity
	ActorPlayer
)

func (k ActorKind) String() string {
	switch k {
	case ActorNone:
		return "none"
	case ActorNonPlayerEntity:
		return "entity"
	case ActorPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Actor is who caused an interaction. EntityTypeID is only meaningful for
// ActorNonPlayerEntity and PlayerID only for ActorPlayer.
type Actor struct {
	Kind         ActorKind `json:"kind"`
	EntityTypeID string    `json:"entity_type_id,omitempty"`
	PlayerID     int64     `json:"player_id,omitempty"`
}

// NoActor is the actor of records with no known cause.
func NoActor() Actor { return Actor{Kind: ActorNone} }

// EntityActor builds a non-player entity actor.
func EntityActor(typeID string) Actor {
	return Actor{Kind: ActorNonPlayerEntity, EntityTypeID: typeID}
}

// PlayerActor builds a player actor.
func PlayerActor(id int64) Actor {
	return Actor{Kind: ActorPlayer, PlayerID: id}
}

// Location is a block position in one dimension of the world.
type Location struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Dimension string `json:"dimension"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%d, %d, %d)", l.Dimension, l.X, l.Y, l.Z)
}

// BlockSnapshot is a by-value capture of a block at the moment of a game event.
type BlockSnapshot struct {
	Location      Location `json:"location"`
	TypeID        string   `json:"type_id"`
	IsAir         bool     `json:"is_air,omitempty"`
	IsLiquid      bool     `json:"is_liquid,omitempty"`
	IsWaterlogged bool     `json:"is_waterlogged,omitempty"`
	// StructureID is empty when the block carried no structure data.
	StructureID string `json:"structure_id,omitempty"`
}

// Event is one decoded log record.
type Event struct {
	Time             int64           `json:"time"`
	Location         Location        `json:"location"`
	Interaction      InteractionKind `json:"interaction"`
	BlockTypeID      string          `json:"block_type_id"`
	HasStructureData bool            `json:"has_structure_data"`
	StructureID      string          `json:"structure_id,omitempty"`
	Actor            Actor           `json:"actor"`
	RolledBack       bool            `json:"rolled_back"`
	Key              string          `json:"key"`
}

// KeyRecord is the decoded form of an event key.
type KeyRecord struct {
	ID       string
	Time     int64
	Location Location
}

func (k InteractionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return []byte(k.String()), nil
}

func (k *InteractionKind) UnmarshalText(b []byte) error {
	parsed, err := ParseInteractionName(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k ActorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ActorKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*k = ActorNone
	case "entity":
		*k = ActorNonPlayerEntity
	case "player":
		*k = ActorPlayer
	default:
		return fmt.Errorf("unknown actor kind %q", string(b))
	}
	return nil
}
