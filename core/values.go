package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// ValueSeparator joins value fields.
	ValueSeparator = ","
	// NullField stands in for absent optional fields. It can never match the
	// player id pattern.
	NullField = "-"

	flagFalse = "0"
	flagTrue  = "1"

	valueFields = 6
)

// playerIDPattern decides actor identity by shape: players have decimal ids,
// every other entity has a namespaced type id.
var playerIDPattern = regexp.MustCompile(`^-?\d+$`)

// ValueFields is everything about an event that is not part of its key.
type ValueFields struct {
	Interaction      InteractionKind
	BlockTypeID      string
	HasStructureData bool
	StructureID      string
	Actor            Actor
	RolledBack       bool
}

// BuildValue encodes fields as
// <interaction>,<blockTypeId>,<nbt>,<structureId|->,<actor|->,<rolledBack>.
func BuildValue(f ValueFields) (string, error) {
	if !f.Interaction.Valid() {
		return "", &DecodeError{Field: "interaction", Value: f.Interaction.String(), Message: "unknown interaction kind"}
	}
	actor, err := encodeActor(f.Actor)
	if err != nil {
		return "", err
	}
	structure := NullField
	if f.HasStructureData {
		if f.StructureID == NullField {
			return "", fmt.Errorf("%w: %q", ErrAmbiguousStructure, f.StructureID)
		}
		structure = f.StructureID
	}

	fields := [valueFields]struct {
		name  string
		value string
	}{
		{"interaction", f.Interaction.Code()},
		{"block_type_id", f.BlockTypeID},
		{"nbt", encodeFlag(f.HasStructureData)},
		{"structure_id", structure},
		{"actor", actor},
		{"rolled_back", encodeFlag(f.RolledBack)},
	}

	var sb strings.Builder
	for i, field := range fields {
		if strings.Contains(field.value, ValueSeparator) {
			return "", &DelimiterCollisionError{Field: field.name, Value: field.value, Delimiter: ValueSeparator}
		}
		if i > 0 {
			sb.WriteString(ValueSeparator)
		}
		sb.WriteString(field.value)
	}
	return sb.String(), nil
}

// ParseValue is the inverse of BuildValue.
func ParseValue(value string) (ValueFields, error) {
	parts := strings.Split(value, ValueSeparator)
	if len(parts) != valueFields {
		return ValueFields{}, &DecodeError{Field: "value", Value: value, Message: "unexpected field count"}
	}

	kind, err := ParseInteractionCode(parts[0])
	if err != nil {
		return ValueFields{}, err
	}
	nbt, err := decodeFlag("nbt", parts[2])
	if err != nil {
		return ValueFields{}, err
	}
	rolledBack, err := decodeFlag("rolled_back", parts[5])
	if err != nil {
		return ValueFields{}, err
	}
	actor, err := decodeActor(parts[4])
	if err != nil {
		return ValueFields{}, err
	}

	f := ValueFields{
		Interaction:      kind,
		BlockTypeID:      parts[1],
		HasStructureData: nbt,
		Actor:            actor,
		RolledBack:       rolledBack,
	}
	if nbt && parts[3] != NullField {
		f.StructureID = parts[3]
	}
	return f, nil
}

func encodeActor(a Actor) (string, error) {
	switch a.Kind {
	case ActorNone:
		return NullField, nil
	case ActorPlayer:
		return strconv.FormatInt(a.PlayerID, 10), nil
	case ActorNonPlayerEntity:
		if a.EntityTypeID == "" || a.EntityTypeID == NullField || playerIDPattern.MatchString(a.EntityTypeID) {
			return "", fmt.Errorf("%w: %q", ErrAmbiguousActor, a.EntityTypeID)
		}
		return a.EntityTypeID, nil
	default:
		return "", &DecodeError{Field: "actor", Value: a.Kind.String(), Message: "unknown actor kind"}
	}
}

func decodeActor(field string) (Actor, error) {
	if field == NullField {
		return NoActor(), nil
	}
	if playerIDPattern.MatchString(field) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return Actor{}, &DecodeError{Field: "actor", Value: field, Message: "player id out of range", Err: err}
		}
		return PlayerActor(id), nil
	}
	if field == "" {
		return Actor{}, &DecodeError{Field: "actor", Value: field, Message: "empty actor identity"}
	}
	return EntityActor(field), nil
}

func encodeFlag(b bool) string {
	if b {
		return flagTrue
	}
	return flagFalse
}

func decodeFlag(name, code string) (bool, error) {
	switch code {
	case flagTrue:
		return true, nil
	case flagFalse:
		return false, nil
	}
	return false, &DecodeError{Field: name, Value: code, Message: "unknown flag code"}
}
