package keys

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// conservative validation: letters, digits, dot, underscore, dash, so
	// channel and id values never carry the ":" separator into a key.
	idRegexp      = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)
	channelRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

	messageKeyRegexp = regexp.MustCompile(`^c:([A-Za-z0-9._-]{1,64}):m:([0-9]{20}):([A-Za-z0-9._-]{1,256})$`)
)

var ErrInvalidKey = errors.New("invalid key")

func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func ValidateChannel(channel string) error {
	if !channelRegexp.MatchString(channel) {
		return fmt.Errorf("invalid channel %q: use 1-64 letters, digits, '.', '_' or '-'", channel)
	}
	return nil
}

// MessageKeyParts holds the decoded segments of a message key.
type MessageKeyParts struct {
	Channel   string
	CreatedAt time.Time
	ID        string
}

func ParseMessageKey(key string) (MessageKeyParts, error) {
	m := messageKeyRegexp.FindStringSubmatch(key)
	if m == nil {
		return MessageKeyParts{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ns, err := strconv.ParseInt(strings.TrimLeft(m[2], "0"), 10, 64)
	if err != nil && strings.TrimLeft(m[2], "0") != "" {
		return MessageKeyParts{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return MessageKeyParts{Channel: m[1], CreatedAt: time.Unix(0, ns).UTC(), ID: m[3]}, nil
}
