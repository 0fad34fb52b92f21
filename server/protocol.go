package server

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/INLOpen/areas/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Inbound message types.
const (
	MsgBlockBroken   = "block_broken"
	MsgBlockSettled  = "block_settled"
	MsgBlockPlaced   = "block_placed"
	MsgBlockExploded = "block_exploded"
	MsgEntityDied    = "entity_died"
	MsgPlayerSpawn   = "player_spawn"
	MsgInspect       = "inspect"
	MsgUsage         = "usage"
)

// Reply types.
const (
	ReplyAck     = "ack"
	ReplyError   = "error"
	ReplyRecords = "records"
	ReplyUsage   = "usage"
	ReplyAlert   = "alert"
)

//go:embed ingest_schema.json
var ingestSchemaJSON string

const ingestSchemaURL = "https://areas.inlopen.dev/schemas/ingest.json"

func compileIngestSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString(ingestSchemaURL, ingestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}
	return schema, nil
}

// InboundMessage is one game event or request sent by a game host. Which
// fields are set depends on Type.
type InboundMessage struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Time         int64                `json:"time,omitempty"`
	Block        *core.BlockSnapshot  `json:"block,omitempty"`
	Blocks       []core.BlockSnapshot `json:"blocks,omitempty"`
	Actor        *core.Actor          `json:"actor,omitempty"`
	EntityTypeID string               `json:"entity_type_id,omitempty"`
	Location     *core.Location       `json:"location,omitempty"`
	PlayerID     int64                `json:"player_id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Query        *wireQuery           `json:"query,omitempty"`
}

// wireQuery differs from core.Query only in the area corners, which carry
// no dimension of their own.
type wireQuery struct {
	Time        *core.TimeBound       `json:"time,omitempty"`
	Interaction *core.InteractionKind `json:"interaction,omitempty"`
	Actor       *core.ActorFilter     `json:"actor,omitempty"`
	Area        *struct {
		Dimension string        `json:"dimension"`
		Min       core.Location `json:"min"`
		Max       core.Location `json:"max"`
	} `json:"area,omitempty"`
}

func (w *wireQuery) toQuery() *core.Query {
	if w == nil {
		return nil
	}
	q := &core.Query{Time: w.Time, Interaction: w.Interaction, Actor: w.Actor}
	if w.Area != nil {
		area := core.NewArea(w.Area.Dimension, w.Area.Min, w.Area.Max)
		q.Area = &area
	}
	return q
}

type AckReply struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Retracted *bool  `json:"retracted,omitempty"`
	Logged    *int   `json:"logged,omitempty"`
}

type ErrorReply struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type RecordsReply struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Records []core.Event `json:"records"`
}

type UsageReply struct {
	Type  string           `json:"type"`
	ID    string           `json:"id,omitempty"`
	Usage core.StorageInfo `json:"usage"`
	// Human is the usage the way operators read it, e.g. "1.5 KiB".
	Human string `json:"human"`
	// MaxBytes is zero when the store has no budget.
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

type AlertReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// decodeInbound validates raw against the ingest schema and decodes it.
func decodeInbound(schema *jsonschema.Schema, raw []byte) (*InboundMessage, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}

// messageID pulls the request id out of a message that failed validation so
// the error reply can still be correlated.
func messageID(raw []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return probe.ID
}
