package main

import (
	"fmt"
	"strings"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// parseSeeds parses a comma-separated "<hex-id>@<host:port>" list into
// bootstrap seeds. Empty input yields no seeds, not an error, since
// running without a bootstrap peer (the first node of a ring) is valid.
func parseSeeds(s string) ([]types.NodeInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	seeds := make([]types.NodeInfo, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		at := strings.IndexByte(part, '@')
		if at < 0 {
			return nil, fmt.Errorf("seed %q must be <id>@<host:port>", part)
		}
		id, err := types.IDFromHex(part[:at])
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", part, err)
		}
		addr := part[at+1:]
		if addr == "" {
			return nil, fmt.Errorf("seed %q missing host:port", part)
		}
		seeds = append(seeds, types.NodeInfo{
			ID:      id,
			Contact: types.Contact{Kind: types.ContactNative, Addr: addr},
		})
	}
	return seeds, nil
}
