package keys

import (
	"fmt"
	"strings"
	"time"
)

func GenMessageKey(channel string, createdAt time.Time, id string) string {
	return fmt.Sprintf(MessageKey, channel, PadTS(createdAt.UnixNano()), id)
}

func GenMessagePrefix(channel string) string {
	return fmt.Sprintf(MessagePrefix, channel)
}

// GenMessageUpperBound returns the exclusive iterator bound for messages in
// channel created strictly before t.
func GenMessageUpperBound(channel string, t time.Time) string {
	return GenMessagePrefix(channel) + PadTS(t.UnixNano())
}

func GenMessageIDIndex(id string) string {
	return fmt.Sprintf(MessageIDIndex, id)
}

func GenReplyIndex(parentID string) string {
	return fmt.Sprintf(ReplyIndex, parentID)
}

func GenProfileKey(userID string) string {
	return fmt.Sprintf(ProfileKey, userID)
}

func GenUserKey(userID string) string {
	return fmt.Sprintf(UserKey, userID)
}

func GenUserEmailIndex(email string) string {
	return fmt.Sprintf(UserEmailIndex, strings.ToLower(strings.TrimSpace(email)))
}

func GenTokenKey(kind, hash string) string {
	return fmt.Sprintf(TokenKey, kind, hash)
}

func GenRevokedKey(jti string) string {
	return fmt.Sprintf(RevokedKey, jti)
}

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func PrefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return b[:i+1]
		}
	}
	return nil
}
