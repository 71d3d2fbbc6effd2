package ancestry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identity represents a Git identity (author or committer) in its raw
// form: "name <email> timestamp timezone", matching Git's internal commit
// object encoding.
type Identity struct {
	Name      string
	Email     string
	Timestamp int64
	Timezone  string
}

// ParseIdentity parses a Git identity line's value.
func ParseIdentity(identity string) (Identity, error) {
	emailEnd := strings.LastIndex(identity, ">")
	if emailEnd == -1 {
		return Identity{}, fmt.Errorf("ancestry: invalid identity format: %s", identity)
	}

	emailStart := strings.LastIndex(identity[:emailEnd], "<")
	if emailStart == -1 {
		return Identity{}, fmt.Errorf("ancestry: invalid identity format: %s", identity)
	}

	name := strings.TrimSpace(identity[:emailStart])
	email := identity[emailStart+1 : emailEnd]

	timeStr := strings.TrimSpace(identity[emailEnd+1:])
	parts := strings.Split(timeStr, " ")
	if len(parts) != 2 {
		return Identity{}, fmt.Errorf("ancestry: invalid time format: %s", timeStr)
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("ancestry: invalid timestamp: %w", err)
	}

	return Identity{
		Name:      name,
		Email:     email,
		Timestamp: timestamp,
		Timezone:  parts[1],
	}, nil
}

// Time converts the identity's timestamp and timezone offset into a
// time.Time in that fixed zone.
func (i Identity) Time() (time.Time, error) {
	if len(i.Timezone) != 5 {
		return time.Time{}, fmt.Errorf("ancestry: invalid timezone offset format: %s", i.Timezone)
	}

	sign := i.Timezone[0]
	if sign != '+' && sign != '-' {
		return time.Time{}, fmt.Errorf("ancestry: invalid timezone sign: %c", sign)
	}

	hours, err := strconv.Atoi(i.Timezone[1:3])
	if err != nil {
		return time.Time{}, fmt.Errorf("ancestry: invalid hours: %w", err)
	}
	minutes, err := strconv.Atoi(i.Timezone[3:5])
	if err != nil {
		return time.Time{}, fmt.Errorf("ancestry: invalid minutes: %w", err)
	}

	seconds := hours*3600 + minutes*60
	if sign == '-' {
		seconds = -seconds
	}

	loc := time.FixedZone("", seconds)
	return time.Unix(i.Timestamp, 0).In(loc), nil
}
