package accessCode

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samborkent/uuidv7"
)

// NewSecret returns a fresh per-match secret.
func NewSecret() string {
	return uuidv7.New().String()
}

// GenerateCode packs the match ID and its secret into an opaque code that
// fits in a mail link.
func GenerateCode(matchID, secret string) string {
	code := fmt.Sprintf("%s|%s", matchID, secret)
	return base64.StdEncoding.EncodeToString([]byte(code))
}

func Decode(code string) (matchID, secret string, err error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return "", "", err
	}
	res := strings.Split(string(decodedBytes), "|")
	if len(res) != 2 {
		return "", "", fmt.Errorf("not correct format")
	}
	return res[0], res[1], nil
}
