package keyvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
	"github.com/flashdb/playground/internal/pubsub"
)

// BucketName is the persisted bucket and bus topic of the key-value engine.
const BucketName = "redis"

// scanPageSize is the number of keys SCAN returns per call.
const scanPageSize = 10

const (
	emptyList = "(empty list or set)"
	nilReply  = "(nil)"
)

var initialModel = json.RawMessage(`{"strings":{},"lists":{},"sets":{},"hashes":{},"zsets":{},"ttl":{}}`)

var helpList = []string{
	"SET key value", "GET key", "DEL key [key ...]", "EXISTS key [key ...]", "TYPE key",
	"PERSIST key", "EXPIRE key seconds", "TTL key", "RENAME oldkey newkey",
	"INCR key", "INCRBY key increment", "DECR key", "KEYS pattern", "DBSIZE", "FLUSHALL",
	"HSET key field value [field value ...]", "HGET key field", "HGETALL key", "HDEL key field [field ...]", "HLEN key",
	"LPUSH key value [value ...]", "RPUSH key value [value ...]", "LPOP key", "RPOP key", "LRANGE key start stop", "LLEN key",
	"SADD key member [member ...]", "SREM key member [member ...]", "SISMEMBER key member",
	"SINTER key [key ...]", "SUNION key [key ...]", "SDIFF key [key ...]", "SCARD key", "SMEMBERS key",
	"ZADD key score member [score member ...]", "ZRANGE key start stop [WITHSCORES]",
	"ZRANGEBYSCORE key min max [WITHSCORES]", "ZREM key member [member ...]", "ZCARD key", "ZSCORE key member",
	"SCAN cursor [MATCH p]", "SUBSCRIBE channel", "UNSUBSCRIBE channel", "PUBLISH channel message",
}

// Engine is the key-value engine. It is NOT safe for concurrent Execute and
// Sweep calls; the router serializes them. Bus deliveries may arrive from
// any goroutine.
type Engine struct {
	*engine.Base
	store       *Store
	subs        *xsync.MapOf[string, struct{}]
	unsubscribe func()
}

// New loads or creates the redis bucket and subscribes to the bus.
func New(deps engine.Deps) (*Engine, error) {
	base, data, err := engine.NewBase(BucketName, deps, initialModel, true)
	if err != nil {
		return nil, err
	}
	store := NewStore()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("keyvalue: failed to load model: %w", err)
	}

	e := &Engine{
		Base:  base,
		store: store,
		subs:  xsync.NewMapOf[string, struct{}](),
	}
	e.unsubscribe = base.Bus().Subscribe(BucketName, e.onMessage)
	return e, nil
}

// Close detaches the engine from the bus.
func (e *Engine) Close() error {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	return nil
}

// Store exposes the data model.
func (e *Engine) Store() *Store { return e.store }

// Count returns the number of keys.
func (e *Engine) Count() int { return e.store.Len() }

// Help returns the command list, or the usage of the first command whose
// name starts with topic.
func (e *Engine) Help(topic string) []string {
	topic = strings.ToUpper(strings.TrimSpace(topic))
	if topic == "" {
		return append([]string{"Redis - Supported:"}, helpList...)
	}
	for _, u := range helpList {
		if strings.HasPrefix(strings.ToUpper(u), topic) {
			return []string{"Usage: " + u}
		}
	}
	return []string{"Unknown command for HELP"}
}

// Execute runs one command line.
func (e *Engine) Execute(line string) engine.Result {
	var res engine.Result
	res.Add(engine.KindPrompt, e.Prompt()+line)

	argv, err := tokenize(line)
	if err == nil {
		var cmd command
		if cmd, err = parseCommand(argv); err == nil {
			err = e.dispatch(cmd, line, &res)
			if err == nil {
				if cmd.isWrite() {
					e.AppendLog(line)
					e.CaptureSnapshot(e.store)
				}
				e.Persist(e.store)
			}
		}
	}
	if err != nil {
		res.Fail(err)
	}
	e.Activity()
	return res
}

func (e *Engine) now() int64 { return e.Now().UnixMilli() }

func integer(n int) string { return "(integer) " + strconv.Itoa(n) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// quote wraps s in double quotes without escaping, as redis-cli displays
// replies.
func quote(s string) string { return `"` + s + `"` }

func formatScore(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func printList(res *engine.Result, items []string) {
	if len(items) == 0 {
		res.Print(emptyList)
		return
	}
	for i, it := range items {
		res.Print(fmt.Sprintf("%d) %s", i+1, quote(it)))
	}
}

func printScored(res *engine.Result, items []ScoredMember, withScores bool) {
	if len(items) == 0 {
		res.Print(emptyList)
		return
	}
	for i, it := range items {
		res.Print(fmt.Sprintf("%d) %s", i+1, quote(it.Member)))
		if withScores {
			res.Print("   " + quote(formatScore(it.Score)))
		}
	}
}

// dispatch executes cmd against the store and appends its output to res.
func (e *Engine) dispatch(cmd command, line string, res *engine.Result) error {
	s := e.store
	switch c := cmd.(type) {
	case setCmd:
		s.SetString(c.key, c.value)
		res.Print("OK")
	case getCmd:
		if v, ok := s.GetString(c.key); ok {
			res.Print(v)
		} else {
			res.Print(nilReply)
		}
	case delCmd:
		n := 0
		for _, k := range c.keys {
			n += boolInt(s.Delete(k))
		}
		res.Print(integer(n))
	case existsCmd:
		n := 0
		for _, k := range c.keys {
			n += boolInt(s.Exists(k))
		}
		res.Print(integer(n))
	case typeCmd:
		if t := s.Type(c.key); t != "" {
			res.Print(t)
		} else {
			res.Print("none")
		}
	case persistCmd:
		res.Print(integer(boolInt(s.Exists(c.key) && s.Persist(c.key))))
	case expireCmd:
		if !s.Exists(c.key) {
			res.Print(integer(0))
			return nil
		}
		sec, ok := engine.ParseIntPrefix(c.seconds)
		if !ok {
			return engine.ArgumentError("seconds must be a number")
		}
		if sec <= 0 {
			s.Delete(c.key)
		} else {
			s.Expire(c.key, engine.ExpiryAt(e.now(), sec))
		}
		res.Print(integer(1))
	case ttlCmd:
		res.Print(integer(e.ttl(c.key)))
	case renameCmd:
		if !s.Rename(c.from, c.to) {
			return engine.ArgumentError("ERR no such key")
		}
		res.Print("OK")
	case incrByCmd:
		cur := int64(0)
		if v, ok := s.GetString(c.key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return engine.ArgumentError("value is not an integer or out of range")
			}
			cur = n
		} else if s.Exists(c.key) {
			return engine.ArgumentError("WRONGTYPE Operation against a key holding the wrong kind of value")
		}
		cur += c.delta
		s.ReplaceString(c.key, strconv.FormatInt(cur, 10))
		res.Print("(integer) " + strconv.FormatInt(cur, 10))
	case scanCmd:
		keys := filterKeys(s.Keys(), c.pattern)
		start := min(c.cursor, len(keys))
		page := keys[start:min(start+scanPageSize, len(keys))]
		next := start + len(page)
		if next >= len(keys) {
			next = 0
		}
		res.Print("1) " + quote(strconv.Itoa(next)))
		if len(page) == 0 {
			res.Print("2) " + emptyList)
			return nil
		}
		res.Print("2)")
		for i, k := range page {
			res.Print(fmt.Sprintf("   %d) %s", i+1, quote(k)))
		}
	case keysCmd:
		printList(res, filterKeys(s.Keys(), c.pattern))
	case dbsizeCmd:
		res.Print(integer(s.Len()))
	case flushallCmd:
		s.Flush()
		res.Print("OK")

	case hsetCmd:
		h := s.Hash(c.key, true)
		added := 0
		for _, p := range c.pairs {
			added += boolInt(h.Set(p.Field, p.Value))
		}
		res.Print(integer(added))
	case hgetCmd:
		if h := s.Hash(c.key, false); h != nil {
			if v, ok := h.Get(c.field); ok {
				res.Print(v)
				return nil
			}
		}
		res.Print(nilReply)
	case hgetallCmd:
		h := s.Hash(c.key, false)
		if h == nil || h.Len() == 0 {
			res.Print(emptyList)
			return nil
		}
		for i, fv := range h.GetAll() {
			res.Print(fmt.Sprintf("%d) %s", i*2+1, quote(fv.Field)))
			res.Print(fmt.Sprintf("%d) %s", i*2+2, quote(fv.Value)))
		}
	case hdelCmd:
		h := s.Hash(c.key, false)
		if h == nil {
			res.Print(integer(0))
			return nil
		}
		n := h.Del(c.fields...)
		s.DropIfEmpty(c.key)
		res.Print(integer(n))
	case hlenCmd:
		n := 0
		if h := s.Hash(c.key, false); h != nil {
			n = h.Len()
		}
		res.Print(integer(n))

	case pushCmd:
		l := s.List(c.key, true)
		if c.left {
			res.Print(integer(l.LPush(c.values...)))
		} else {
			res.Print(integer(l.RPush(c.values...)))
		}
	case popCmd:
		l := s.List(c.key, false)
		if l == nil {
			res.Print(nilReply)
			return nil
		}
		var v string
		if c.left {
			v, _ = l.LPop()
		} else {
			v, _ = l.RPop()
		}
		s.DropIfEmpty(c.key)
		res.Print(v)
	case lrangeCmd:
		var items []string
		if l := s.List(c.key, false); l != nil {
			items = l.Range(c.start, c.stop)
		}
		printList(res, items)
	case llenCmd:
		n := 0
		if l := s.List(c.key, false); l != nil {
			n = l.Len()
		}
		res.Print(integer(n))

	case saddCmd:
		res.Print(integer(s.Set(c.key, true).Add(c.members...)))
	case sremCmd:
		st := s.Set(c.key, false)
		if st == nil {
			res.Print(integer(0))
			return nil
		}
		n := st.Rem(c.members...)
		s.DropIfEmpty(c.key)
		res.Print(integer(n))
	case smembersCmd:
		var members []string
		if st := s.Set(c.key, false); st != nil {
			members = st.Members()
		}
		printList(res, members)
	case sismemberCmd:
		st := s.Set(c.key, false)
		res.Print(integer(boolInt(st != nil && st.IsMember(c.member))))
	case scardCmd:
		n := 0
		if st := s.Set(c.key, false); st != nil {
			n = st.Card()
		}
		res.Print(integer(n))
	case setAlgebraCmd:
		sets := make([]*Set, len(c.keys))
		for i, k := range c.keys {
			sets[i] = s.Set(k, false)
		}
		printList(res, c.op(sets...))

	case zaddCmd:
		res.Print(integer(s.ZSet(c.key, true).Add(c.members...)))
	case zrangeCmd:
		var items []ScoredMember
		if z := s.ZSet(c.key, false); z != nil {
			items = z.Range(c.start, c.stop)
		}
		printScored(res, items, c.withScores)
	case zrangeByScoreCmd:
		var items []ScoredMember
		if z := s.ZSet(c.key, false); z != nil {
			items = z.RangeByScore(c.min, c.max)
		}
		printScored(res, items, c.withScores)
	case zremCmd:
		z := s.ZSet(c.key, false)
		if z == nil {
			res.Print(integer(0))
			return nil
		}
		n := z.Remove(c.members...)
		s.DropIfEmpty(c.key)
		res.Print(integer(n))
	case zcardCmd:
		n := 0
		if z := s.ZSet(c.key, false); z != nil {
			n = z.Card()
		}
		res.Print(integer(n))
	case zscoreCmd:
		if z := s.ZSet(c.key, false); z != nil {
			if score, ok := z.Score(c.member); ok {
				res.Print(formatScore(score))
				return nil
			}
		}
		res.Print(nilReply)

	case subscribeCmd:
		e.subs.Store(c.channel, struct{}{})
		res.Print("Subscribed to " + c.channel)
	case unsubscribeCmd:
		e.subs.Delete(c.channel)
		res.Print("Unsubscribed from " + c.channel)
	case publishCmd:
		e.Bus().Publish(BucketName, pubsub.Message{
			Channel: c.channel,
			Payload: c.message,
			Origin:  e.ContextID(),
			At:      e.Now(),
		})
		e.AppendLog(line)
		_, local := e.subs.Load(c.channel)
		if local {
			res.Print(deliveryLine(c.channel, c.message))
		}
		res.Print(integer(boolInt(local)))

	default:
		return engine.Errorf(engine.ErrUnknownCommand, "Unknown command: %T", cmd)
	}
	return nil
}

// ttl returns the remaining seconds of key, -1 without an expiry and -2 if
// the key does not exist.
func (e *Engine) ttl(key string) int {
	if key == "" || !e.store.Exists(key) {
		return -2
	}
	at, ok := e.store.ExpireAt(key)
	if !ok {
		return -1
	}
	remaining := math.Ceil(float64(at-e.now()) / 1000)
	return int(max(0, remaining))
}

func deliveryLine(channel, payload string) string {
	return "message " + channel + " " + quote(payload)
}

// onMessage delivers a message published by another context to local
// subscribers.
func (e *Engine) onMessage(msg pubsub.Message) {
	if msg.Origin == e.ContextID() {
		return
	}
	if _, ok := e.subs.Load(msg.Channel); !ok {
		return
	}
	e.Emit(engine.KindPlain, deliveryLine(msg.Channel, msg.Payload))
	e.Activity()
}

// Subscriptions returns the channels subscribed in this context.
func (e *Engine) Subscriptions() []string {
	var channels []string
	e.subs.Range(func(ch string, _ struct{}) bool {
		channels = append(channels, ch)
		return true
	})
	return channels
}

// Sweep deletes every key whose expiry is at or before now.
func (e *Engine) Sweep(now time.Time) int {
	expired := e.store.Expired(now.UnixMilli())
	if len(expired) == 0 {
		return 0
	}
	for _, k := range expired {
		e.store.Delete(k)
		e.Emit(engine.KindPlain, "Key expired: "+k)
	}
	e.Persist(e.store)
	e.Logger().Debug("expired keys", zap.Int("count", len(expired)))
	return len(expired)
}

// Export returns a copy of the redis bucket.
func (e *Engine) Export() (*bucket.Bucket, error) {
	return e.ExportBucket(e.store)
}

// Import replaces the redis bucket.
func (e *Engine) Import(b *bucket.Bucket) error {
	return e.ImportBucket(b, func(data json.RawMessage) error {
		fresh := NewStore()
		if err := json.Unmarshal(data, fresh); err != nil {
			return err
		}
		e.store = fresh
		return nil
	})
}
