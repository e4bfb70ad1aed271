package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlayerList is the parsed answer to the "list" command.
type PlayerList struct {
	Online int
	Max    int
	Names  []string
}

// vanilla: "There are 2 of a max of 20 players online: Alice, Bob"
// pre-1.13: "There are 2/20 players online:\nAlice, Bob"
var listRe = regexp.MustCompile(`(?s)There are (\d+)(?: of a max of |/)(\d+) players online:\s*(.*)`)

// formatting codes some server forks add to the list output
var colorRe = regexp.MustCompile(`§.`)

// ParseList parses the output of the "list" command.
func ParseList(out string) (PlayerList, error) {
	m := listRe.FindStringSubmatch(colorRe.ReplaceAllString(out, ""))
	if m == nil {
		return PlayerList{}, fmt.Errorf("unrecognised list output: %q", out)
	}
	online, _ := strconv.Atoi(m[1])
	maxPlayers, _ := strconv.Atoi(m[2])

	var names []string
	for _, n := range strings.Split(m[3], ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return PlayerList{Online: online, Max: maxPlayers, Names: names}, nil
}
