package core

import (
	"strings"
)

const (
	// KeyPrefix marks the event key family inside the shared property bag.
	KeyPrefix = "bl"
	// KeySeparator joins key segments.
	KeySeparator = "."

	keySegments = 6
)

// EventKeyPrefix is what every event key starts with.
const EventKeyPrefix = KeyPrefix + KeySeparator

// IsEventKey reports whether key belongs to the event key family.
func IsEventKey(key string) bool {
	return strings.HasPrefix(key, EventKeyPrefix)
}

// BuildKey encodes the identity of an event:
// <prefix>.<time>.<x>.<y>.<z>.<dimension>, numbers in base-N.
func BuildKey(t int64, loc Location) (string, error) {
	segments := [keySegments]struct {
		field string
		value string
	}{
		{"prefix", KeyPrefix},
		{"time", EncodeBaseN(t)},
		{"x", EncodeBaseN(int64(loc.X))},
		{"y", EncodeBaseN(int64(loc.Y))},
		{"z", EncodeBaseN(int64(loc.Z))},
		{"dimension", loc.Dimension},
	}

	var sb strings.Builder
	for i, seg := range segments {
		if strings.Contains(seg.value, KeySeparator) {
			return "", &DelimiterCollisionError{Field: seg.field, Value: seg.value, Delimiter: KeySeparator}
		}
		if i > 0 {
			sb.WriteString(KeySeparator)
		}
		sb.WriteString(seg.value)
	}
	return sb.String(), nil
}

// ParseKey is the inverse of BuildKey. The returned record's ID is the key itself.
func ParseKey(key string) (KeyRecord, error) {
	parts := strings.Split(key, KeySeparator)
	if len(parts) != keySegments {
		return KeyRecord{}, &DecodeError{Field: "key", Value: key, Message: "unexpected segment count"}
	}
	if parts[0] != KeyPrefix {
		return KeyRecord{}, &DecodeError{Field: "key", Value: key, Message: "missing event key prefix"}
	}

	var nums [4]int64
	for i, name := range [4]string{"time", "x", "y", "z"} {
		n, err := DecodeBaseN(parts[i+1])
		if err != nil {
			return KeyRecord{}, &DecodeError{Field: name, Value: key, Message: "invalid number", Err: err}
		}
		nums[i] = n
	}

	return KeyRecord{
		ID:   key,
		Time: nums[0],
		Location: Location{
			X:         int(nums[1]),
			Y:         int(nums[2]),
			Z:         int(nums[3]),
			Dimension: parts[5],
		},
	}, nil
}
