package core

import (
	"math"

	"github.com/dustin/go-humanize"
)

// StorageUnit is a 1024-based storage magnitude.
type StorageUnit int

const (
	UnitByte StorageUnit = iota
	UnitKilobyte
	UnitMegabyte
	UnitGigabyte
	UnitTerabyte
)

func (u StorageUnit) String() string {
	switch u {
	case UnitByte:
		return "B"
	case UnitKilobyte:
		return "KiB"
	case UnitMegabyte:
		return "MiB"
	case UnitGigabyte:
		return "GiB"
	case UnitTerabyte:
		return "TiB"
	default:
		return "?"
	}
}

// StorageInfo describes a byte count in its largest whole unit.
type StorageInfo struct {
	Bytes             int64       `json:"bytes"`
	LargestUnit       StorageUnit `json:"largest_unit"`
	LargestUnitAmount float64     `json:"largest_unit_amount"` // one decimal place
}

// String renders the byte count the way operators read it, e.g. "1.5 KiB".
func (s StorageInfo) String() string {
	return humanize.IBytes(uint64(s.Bytes))
}

// StorageUsage converts a raw byte count. Negative input is treated as its magnitude.
func StorageUsage(bytes int64) StorageInfo {
	if bytes < 0 {
		bytes = -bytes
	}
	unit := UnitByte
	amount := float64(bytes)
	for unit < UnitTerabyte && amount >= 1024 {
		amount /= 1024
		unit++
	}
	return StorageInfo{
		Bytes:             bytes,
		LargestUnit:       unit,
		LargestUnitAmount: roundTenth(amount),
	}
}

// TimeUnit is the coarsest calendar interval spanned by a duration.
type TimeUnit string

const (
	UnitYears   TimeUnit = "years"
	UnitMonths  TimeUnit = "months"
	UnitDays    TimeUnit = "days"
	UnitHours   TimeUnit = "hours"
	UnitMinutes TimeUnit = "minutes"
	UnitSeconds TimeUnit = "seconds"
)

const (
	msSecond = int64(1000)
	msMinute = msSecond * 60
	msHour   = msMinute * 60
	msDay    = msHour * 24
	msMonth  = msDay * 30
	msYear   = msDay * 365
)

// TimeInfo describes the absolute distance between two millisecond timestamps.
type TimeInfo struct {
	Milliseconds int64    `json:"milliseconds"`
	Unit         TimeUnit `json:"unit"`
	Amount       float64  `json:"amount"` // one decimal place
}

// TimeDifference reports how far apart a and b are, ignoring order.
func TimeDifference(a, b int64) TimeInfo {
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	steps := []struct {
		unit TimeUnit
		ms   int64
	}{
		{UnitYears, msYear},
		{UnitMonths, msMonth},
		{UnitDays, msDay},
		{UnitHours, msHour},
		{UnitMinutes, msMinute},
	}
	unit, size := UnitSeconds, msSecond
	for _, s := range steps {
		if delta >= s.ms {
			unit, size = s.unit, s.ms
			break
		}
	}
	return TimeInfo{
		Milliseconds: delta,
		Unit:         unit,
		Amount:       roundTenth(float64(delta) / float64(size)),
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
