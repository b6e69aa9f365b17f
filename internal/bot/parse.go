package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDArg extracts the first numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", fields[0])
	}
	return id, nil
}

// ParseIDPair extracts two numeric IDs, e.g. "<keyword_id> <chat_id>".
func ParseIDPair(args string) (int64, int64, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two IDs")
	}
	first, err := ParseIDArg(fields[0])
	if err != nil {
		return 0, 0, err
	}
	second, err := ParseIDArg(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

// LinkArgs holds the parsed arguments of /link.
type LinkArgs struct {
	NegativeID int64
	KeywordID  int64
	All        bool
}

// ParseLinkArgs parses "<negative_id> <keyword_id|all>".
func ParseLinkArgs(args string) (LinkArgs, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return LinkArgs{}, fmt.Errorf("usage: /link <negative_id> <keyword_id|all>")
	}
	negID, err := ParseIDArg(fields[0])
	if err != nil {
		return LinkArgs{}, err
	}
	if strings.EqualFold(fields[1], "all") {
		return LinkArgs{NegativeID: negID, All: true}, nil
	}
	kwID, err := ParseIDArg(fields[1])
	if err != nil {
		return LinkArgs{}, err
	}
	return LinkArgs{NegativeID: negID, KeywordID: kwID}, nil
}

// ParseLines splits a multi-line argument into trimmed, non-empty, unique entries.
func ParseLines(args string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(args, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}
