package boundary

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"tidy-go/internal/tidy"
)

func encodeToken(tok *tidy.AccessToken) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tok); err != nil {
		return nil, fmt.Errorf("encoding access token: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeToken(data []byte) (*tidy.AccessToken, error) {
	var tok tidy.AccessToken
	if _, err := toml.Decode(string(data), &tok); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return &tok, nil
}
