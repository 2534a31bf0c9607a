package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const listPageSize = 20

// parseListArgs parses `list` arguments into query params and page number.
//
// Supported flags:
// - --severity <critical|high|medium|low>
// - --type <timeout|connection|validation|runtime|other>
// - --range <1h|24h|7d|30d>
// - --fixed / --open
//
// Both --flag value and --flag=value are accepted. Remaining words form the
// search text. The last argument may be a page number.
func parseListArgs(args []string) (page int, values url.Values, err error) {
	page = 1
	values = url.Values{}

	// Optional trailing page number.
	if len(args) > 0 {
		if p, parseErr := strconv.Atoi(args[len(args)-1]); parseErr == nil {
			page = p
			args = args[:len(args)-1]
		}
	}
	if page < 1 {
		page = 1
	}

	var keywordParts []string
	for i := 0; i < len(args); i++ {
		token := args[i]

		switch token {
		case "--fixed":
			values.Set("fixed", "true")
			continue
		case "--open":
			values.Set("fixed", "false")
			continue
		}

		// --flag=value
		if strings.HasPrefix(token, "--") && strings.Contains(token, "=") {
			flagName, flagValue, _ := strings.Cut(token, "=")
			if err := applyListFlag(values, flagName, strings.TrimSpace(flagValue)); err != nil {
				return 0, nil, err
			}
			continue
		}

		// --flag value
		if strings.HasPrefix(token, "--") {
			if i+1 >= len(args) {
				return 0, nil, fmt.Errorf("missing value for %s", token)
			}
			flagValue := strings.TrimSpace(args[i+1])
			i++
			if err := applyListFlag(values, token, flagValue); err != nil {
				return 0, nil, err
			}
			continue
		}

		keywordParts = append(keywordParts, token)
	}

	if keyword := strings.TrimSpace(strings.Join(keywordParts, " ")); keyword != "" {
		values.Set("q", keyword)
	}

	values.Set("limit", strconv.Itoa(listPageSize))
	values.Set("offset", strconv.Itoa((page-1)*listPageSize))
	return page, values, nil
}

func applyListFlag(values url.Values, name, value string) error {
	if value == "" {
		return fmt.Errorf("invalid %s: empty", name)
	}
	switch name {
	case "--severity":
		values.Set("severity", strings.ToLower(value))
	case "--type":
		values.Set("type", strings.ToLower(value))
	case "--range":
		values.Set("range", value)
	default:
		return fmt.Errorf("unknown flag: %s", name)
	}
	return nil
}
