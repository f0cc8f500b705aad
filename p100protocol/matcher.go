package p100protocol

import (
	"strings"
	"sync"
)

// aggregateFamily names the header and entry tokens of a counted list reply.
type aggregateFamily struct {
	countToken string
	entryToken string
}

// aggregateFamilies maps list queries to the shape of their replies.
var aggregateFamilies = map[string]aggregateFamily{
	"SRCS?":     {countToken: TokenSourceCount, entryToken: TokenSource},
	"AUDMODEL?": {countToken: TokenAudioModeCnt, entryToken: TokenAudioMode},
}

// queryResult is the outcome delivered to a waiting caller.
type queryResult struct {
	response string
	err      error
}

// pendingQuery tracks the single outstanding query. Only the receive loop
// calls offer and touches the accumulation fields; any goroutine may fail
// the query through complete.
type pendingQuery struct {
	command string
	prefix  string
	family  *aggregateFamily

	expected int // -1 until a count header is seen
	lines    []string

	resolved bool // set by the receive loop once offer completed the query

	done chan queryResult
	once sync.Once
}

func newPendingQuery(command string) *pendingQuery {
	p := &pendingQuery{
		command:  command,
		prefix:   ResponsePrefix + strings.TrimSuffix(command, QueryMarker) + "(",
		expected: -1,
		done:     make(chan queryResult, 1),
	}
	if f, ok := aggregateFamilies[command]; ok {
		p.family = &f
	}
	return p
}

// lineToken returns the token of a response line, or "" if it has none.
func lineToken(line string) string {
	if !strings.HasPrefix(line, ResponsePrefix) {
		return ""
	}
	rest := line[len(ResponsePrefix):]
	i := strings.IndexByte(rest, '(')
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

// offer feeds one response line to the query. It reports whether the line
// was consumed. Unconsumed lines belong to someone else.
func (p *pendingQuery) offer(line string) bool {
	if p.resolved {
		return false
	}
	if p.family == nil {
		if strings.HasPrefix(line, p.prefix) {
			p.resolve(queryResult{response: line})
			return true
		}
		return false
	}

	switch lineToken(line) {
	case p.family.countToken:
		n, err := parseCount(line, p.family.countToken)
		if err != nil {
			p.resolve(queryResult{err: err})
			return true
		}
		p.expected = n
		p.lines = []string{line}
	case p.family.entryToken:
		if p.expected < 0 {
			return false
		}
		p.lines = append(p.lines, line)
	default:
		return false
	}

	if len(p.lines)-1 >= p.expected {
		p.resolve(queryResult{response: JoinAggregate(p.lines)})
	}
	return true
}

func (p *pendingQuery) resolve(r queryResult) {
	p.resolved = true
	p.complete(r)
}

// complete delivers the first result; later calls are ignored.
func (p *pendingQuery) complete(r queryResult) {
	p.once.Do(func() {
		p.done <- r
	})
}
