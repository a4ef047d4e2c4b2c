package keyvalue

import (
	"math"
	"strconv"
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

// command is a parsed key-value command. The set of variants is closed; the
// Engine dispatches on the concrete type.
type command interface {
	isWrite() bool
}

// readOnly and mutating mark whether a variant belongs to the write
// allow-list that triggers logging and snapshots.
type readOnly struct{}

func (readOnly) isWrite() bool { return false }

type mutating struct{}

func (mutating) isWrite() bool { return true }

// Strings and generic key commands.
type (
	setCmd struct {
		mutating
		key, value string
	}
	getCmd struct {
		readOnly
		key string
	}
	delCmd struct {
		mutating
		keys []string
	}
	existsCmd struct {
		readOnly
		keys []string
	}
	typeCmd struct {
		readOnly
		key string
	}
	persistCmd struct {
		mutating
		key string
	}
	// seconds stays unparsed: a missing key answers 0 before the number is
	// checked.
	expireCmd struct {
		mutating
		key, seconds string
	}
	ttlCmd struct {
		readOnly
		key string
	}
	renameCmd struct {
		mutating
		from, to string
	}
	incrByCmd struct {
		mutating
		key   string
		delta int64
	}
	scanCmd struct {
		readOnly
		cursor  int
		pattern string
	}
	keysCmd struct {
		readOnly
		pattern string
	}
	dbsizeCmd   struct{ readOnly }
	flushallCmd struct{ mutating }
)

// Hashes.
type (
	hsetCmd struct {
		mutating
		key   string
		pairs []FieldValue
	}
	hgetCmd struct {
		readOnly
		key, field string
	}
	hgetallCmd struct {
		readOnly
		key string
	}
	hdelCmd struct {
		mutating
		key    string
		fields []string
	}
	hlenCmd struct {
		readOnly
		key string
	}
)

// Lists.
type (
	pushCmd struct {
		mutating
		key    string
		values []string
		left   bool
	}
	popCmd struct {
		mutating
		key  string
		left bool
	}
	lrangeCmd struct {
		readOnly
		key         string
		start, stop int
	}
	llenCmd struct {
		readOnly
		key string
	}
)

// Sets.
type (
	saddCmd struct {
		mutating
		key     string
		members []string
	}
	sremCmd struct {
		mutating
		key     string
		members []string
	}
	smembersCmd struct {
		readOnly
		key string
	}
	sismemberCmd struct {
		readOnly
		key, member string
	}
	scardCmd struct {
		readOnly
		key string
	}
	// setAlgebraCmd covers SINTER, SUNION and SDIFF.
	setAlgebraCmd struct {
		readOnly
		op   func(...*Set) []string
		keys []string
	}
)

// Sorted sets.
type (
	zaddCmd struct {
		mutating
		key     string
		members []ScoredMember
	}
	zrangeCmd struct {
		readOnly
		key         string
		start, stop int
		withScores  bool
	}
	zrangeByScoreCmd struct {
		readOnly
		key        string
		min, max   float64
		withScores bool
	}
	zremCmd struct {
		mutating
		key     string
		members []string
	}
	zcardCmd struct {
		readOnly
		key string
	}
	zscoreCmd struct {
		readOnly
		key, member string
	}
)

// Pub/sub. PUBLISH is not on the write allow-list but is still logged.
type (
	subscribeCmd struct {
		readOnly
		channel string
	}
	unsubscribeCmd struct {
		readOnly
		channel string
	}
	publishCmd struct {
		readOnly
		channel, message string
	}
)

// arg returns args[i], or "" when absent.
func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseIndex(s string) (int, error) {
	n, ok := engine.ParseIntPrefix(s)
	if !ok {
		return 0, engine.ArgumentError("value is not an integer or out of range")
	}
	return int(n), nil
}

func parseIndexRange(args []string) (int, int, error) {
	start, err := parseIndex(args[1])
	if err != nil {
		return 0, 0, err
	}
	stop, err := parseIndex(args[2])
	if err != nil {
		return 0, 0, err
	}
	return start, stop, nil
}

func withScores(args []string) bool {
	return strings.EqualFold(arg(args, 3), "WITHSCORES")
}

// parseBound parses a ZRANGEBYSCORE bound. -inf and +inf (or inf) are the
// open ends.
func parseBound(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "-inf":
		return math.Inf(-1), true
	case "+inf", "inf":
		return math.Inf(1), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseCommand turns a tokenized line into a command. Names are
// case-insensitive.
func parseCommand(argv []string) (command, error) {
	name := strings.ToUpper(arg(argv, 0))
	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}

	switch name {
	case "SET":
		if len(args) < 2 {
			return nil, engine.ArgumentError("SET requires key and value")
		}
		return setCmd{key: args[0], value: strings.Join(args[1:], " ")}, nil
	case "GET":
		if len(args) < 1 {
			return nil, engine.ArgumentError("GET requires key")
		}
		return getCmd{key: args[0]}, nil
	case "DEL":
		if len(args) < 1 {
			return nil, engine.ArgumentError("DEL requires key")
		}
		return delCmd{keys: args}, nil
	case "EXISTS":
		return existsCmd{keys: args}, nil
	case "TYPE":
		return typeCmd{key: arg(args, 0)}, nil
	case "PERSIST":
		if len(args) < 1 {
			return nil, engine.ArgumentError("PERSIST requires key")
		}
		return persistCmd{key: args[0]}, nil
	case "EXPIRE":
		if len(args) < 2 {
			return nil, engine.ArgumentError("EXPIRE requires key seconds")
		}
		return expireCmd{key: args[0], seconds: args[1]}, nil
	case "TTL":
		return ttlCmd{key: arg(args, 0)}, nil
	case "RENAME":
		if len(args) < 2 {
			return nil, engine.ArgumentError("RENAME requires oldkey newkey")
		}
		return renameCmd{from: args[0], to: args[1]}, nil
	case "INCR", "DECR":
		if len(args) < 1 {
			return nil, engine.ArgumentError("%s requires key", name)
		}
		delta := int64(1)
		if name == "DECR" {
			delta = -1
		}
		return incrByCmd{key: args[0], delta: delta}, nil
	case "INCRBY":
		if len(args) < 2 {
			return nil, engine.ArgumentError("INCRBY requires key increment")
		}
		delta, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, engine.ArgumentError("value is not an integer or out of range")
		}
		return incrByCmd{key: args[0], delta: delta}, nil
	case "KEYS":
		if len(args) < 1 {
			return nil, engine.ArgumentError("KEYS requires pattern")
		}
		return keysCmd{pattern: args[0]}, nil
	case "DBSIZE":
		return dbsizeCmd{}, nil
	case "FLUSHALL":
		return flushallCmd{}, nil
	case "SCAN":
		if len(args) < 1 {
			return nil, engine.ArgumentError("SCAN requires cursor")
		}
		cursor, ok := engine.ParseIntPrefix(args[0])
		if !ok || cursor < 0 {
			cursor = 0
		}
		pattern := "*"
		if strings.EqualFold(arg(args, 1), "MATCH") && arg(args, 2) != "" {
			pattern = args[2]
		}
		return scanCmd{cursor: int(cursor), pattern: pattern}, nil

	case "HSET":
		if len(args) < 3 || (len(args)-1)%2 != 0 {
			return nil, engine.ArgumentError("HSET requires key field value [field value ...]")
		}
		pairs := make([]FieldValue, 0, (len(args)-1)/2)
		for i := 1; i < len(args); i += 2 {
			pairs = append(pairs, FieldValue{Field: args[i], Value: args[i+1]})
		}
		return hsetCmd{key: args[0], pairs: pairs}, nil
	case "HGET":
		return hgetCmd{key: arg(args, 0), field: arg(args, 1)}, nil
	case "HGETALL":
		return hgetallCmd{key: arg(args, 0)}, nil
	case "HDEL":
		if len(args) < 2 {
			return nil, engine.ArgumentError("HDEL requires key and field")
		}
		return hdelCmd{key: args[0], fields: args[1:]}, nil
	case "HLEN":
		return hlenCmd{key: arg(args, 0)}, nil

	case "LPUSH", "RPUSH":
		if len(args) < 2 {
			return nil, engine.ArgumentError("%s requires key and value", name)
		}
		return pushCmd{key: args[0], values: args[1:], left: name == "LPUSH"}, nil
	case "LPOP", "RPOP":
		if len(args) < 1 {
			return nil, engine.ArgumentError("%s requires key", name)
		}
		return popCmd{key: args[0], left: name == "LPOP"}, nil
	case "LRANGE":
		if len(args) < 3 {
			return nil, engine.ArgumentError("LRANGE requires key start stop")
		}
		start, stop, err := parseIndexRange(args)
		if err != nil {
			return nil, err
		}
		return lrangeCmd{key: args[0], start: start, stop: stop}, nil
	case "LLEN":
		return llenCmd{key: arg(args, 0)}, nil

	case "SADD":
		if len(args) < 2 {
			return nil, engine.ArgumentError("SADD requires key and member")
		}
		return saddCmd{key: args[0], members: args[1:]}, nil
	case "SREM":
		if len(args) < 2 {
			return nil, engine.ArgumentError("SREM requires key and member")
		}
		return sremCmd{key: args[0], members: args[1:]}, nil
	case "SMEMBERS":
		return smembersCmd{key: arg(args, 0)}, nil
	case "SISMEMBER":
		return sismemberCmd{key: arg(args, 0), member: arg(args, 1)}, nil
	case "SCARD":
		return scardCmd{key: arg(args, 0)}, nil
	case "SINTER", "SUNION", "SDIFF":
		if len(args) < 1 {
			return nil, engine.ArgumentError("%s requires at least one key", name)
		}
		op := Inter
		switch name {
		case "SUNION":
			op = Union
		case "SDIFF":
			op = Diff
		}
		return setAlgebraCmd{op: op, keys: args}, nil

	case "ZADD":
		if len(args) < 3 {
			return nil, engine.ArgumentError("ZADD requires key score member [score member ...]")
		}
		rest := args[1:]
		if len(rest)%2 != 0 {
			return nil, engine.ArgumentError("ZADD requires score member pairs")
		}
		members := make([]ScoredMember, 0, len(rest)/2)
		for i := 0; i < len(rest); i += 2 {
			score, err := strconv.ParseFloat(rest[i], 64)
			if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
				return nil, engine.ArgumentError("ZADD requires numeric scores")
			}
			members = append(members, ScoredMember{Member: rest[i+1], Score: score})
		}
		return zaddCmd{key: args[0], members: members}, nil
	case "ZRANGE":
		if len(args) < 3 {
			return nil, engine.ArgumentError("ZRANGE requires key start stop [WITHSCORES]")
		}
		start, stop, err := parseIndexRange(args)
		if err != nil {
			return nil, err
		}
		return zrangeCmd{key: args[0], start: start, stop: stop, withScores: withScores(args)}, nil
	case "ZRANGEBYSCORE":
		if len(args) < 3 {
			return nil, engine.ArgumentError("ZRANGEBYSCORE requires key min max [WITHSCORES]")
		}
		lo, ok := parseBound(args[1])
		if !ok || math.IsInf(lo, 1) {
			return nil, engine.ArgumentError("min must be numeric")
		}
		hi, ok := parseBound(args[2])
		if !ok || math.IsInf(hi, -1) {
			return nil, engine.ArgumentError("max must be numeric")
		}
		return zrangeByScoreCmd{key: args[0], min: lo, max: hi, withScores: withScores(args)}, nil
	case "ZREM":
		if len(args) < 2 {
			return nil, engine.ArgumentError("ZREM requires key and member")
		}
		return zremCmd{key: args[0], members: args[1:]}, nil
	case "ZCARD":
		return zcardCmd{key: arg(args, 0)}, nil
	case "ZSCORE":
		if len(args) < 2 {
			return nil, engine.ArgumentError("ZSCORE requires key member")
		}
		return zscoreCmd{key: args[0], member: args[1]}, nil

	case "SUBSCRIBE":
		if arg(args, 0) == "" {
			return nil, engine.ArgumentError("SUBSCRIBE requires channel")
		}
		return subscribeCmd{channel: args[0]}, nil
	case "UNSUBSCRIBE":
		if arg(args, 0) == "" {
			return nil, engine.ArgumentError("UNSUBSCRIBE requires channel")
		}
		return unsubscribeCmd{channel: args[0]}, nil
	case "PUBLISH":
		channel := arg(args, 0)
		var message string
		if len(args) > 1 {
			message = strings.Join(args[1:], " ")
		}
		if channel == "" || message == "" {
			return nil, engine.ArgumentError("PUBLISH requires channel and message")
		}
		return publishCmd{channel: channel, message: message}, nil
	}

	return nil, engine.Errorf(engine.ErrUnknownCommand, "Unknown command: %s", name)
}
